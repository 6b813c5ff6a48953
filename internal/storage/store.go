// Package storage persists each collection as one flat JSON file. A GET
// reads the whole file and a POST replaces it; there are no partial updates
// and no transactions. Last write wins, which is the documented contract.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tempo/internal/core"
	applog "tempo/internal/log"
)

// Collection file names under the data directory, matching the original
// dashboard's layout.
const (
	SessionsFile     = "data.json"
	ProjectsFile     = "projects.json"
	AchievementsFile = "achievements.json"
	UploadsFile      = "uploads.json"

	cursorFile = "sync_state.json"
)

// FileStore serializes all reads and writes with one mutex. Each operation
// fully reads or fully writes a single file, so there is no finer-grained
// locking to do; the merge-mode achievements path keeps its documented
// read-then-write last-writer-wins window.
type FileStore struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
}

// New creates a store rooted at dir, resolving session timestamps in loc at
// load time.
func New(dir string, loc *time.Location) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, loc: loc}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// readFile returns the raw file contents, or ok=false when the file does not
// exist. A missing file is the normal first-run state, not an error.
func (s *FileStore) readFile(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

func (s *FileStore) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// LoadRaw reads an arbitrary collection file as parsed JSON, returning an
// empty array value when the file is absent.
func (s *FileStore) LoadRaw(_ context.Context, name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []any{}, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

// SaveRaw replaces an arbitrary collection file with the given value,
// pretty-printed the way the original server wrote it.
func (s *FileStore) SaveRaw(_ context.Context, name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile(name, v)
}

// rawSession defers timestamp parsing so one malformed record cannot poison
// the whole load.
type rawSession struct {
	Timestamp string  `json:"timestamp"`
	Hours     float64 `json:"hours"`
	Project   string  `json:"project"`
	Task      string  `json:"task"`
}

// LoadSessions reads the full session list. Records with malformed or
// unparseable timestamps are skipped with a warning rather than failing the
// load; aggregation proceeds over the remainder.
func (s *FileStore) LoadSessions(ctx context.Context) ([]core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(SessionsFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Session{}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SessionsFile, err)
	}

	sessions := make([]core.Session, 0, len(raws))
	for i, raw := range raws {
		var rs rawSession
		if err := json.Unmarshal(raw, &rs); err != nil {
			slog.WarnContext(ctx, "Skipping malformed session record",
				applog.FieldCollection, SessionsFile, "index", i, applog.FieldError, err)
			continue
		}
		ts, err := time.Parse(time.RFC3339, rs.Timestamp)
		if err != nil {
			slog.WarnContext(ctx, "Skipping session with unparseable timestamp",
				applog.FieldCollection, SessionsFile, "index", i, applog.FieldTimestamp, rs.Timestamp, applog.FieldError, err)
			continue
		}
		if math.IsNaN(rs.Hours) || math.IsInf(rs.Hours, 0) {
			slog.WarnContext(ctx, "Skipping session with non-finite hours",
				applog.FieldCollection, SessionsFile, "index", i)
			continue
		}
		sessions = append(sessions, core.Session{
			Timestamp: ts.In(s.loc),
			Hours:     rs.Hours,
			Project:   rs.Project,
			Task:      rs.Task,
		})
	}
	return sessions, nil
}

// SaveSessions replaces the session file wholesale. Timestamps serialize as
// ISO-8601 with their explicit zone offset.
func (s *FileStore) SaveSessions(_ context.Context, sessions []core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessions == nil {
		sessions = []core.Session{}
	}
	return s.writeFile(SessionsFile, sessions)
}

// AppendSession appends one record to the session file under a single lock
// held for the whole read-modify-write. It operates on the raw JSON array so
// stored records survive verbatim, including ones the read path would skip;
// callers validate the new session before reaching here.
func (s *FileStore) AppendSession(_ context.Context, sess core.Session) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []json.RawMessage{}
	data, ok, err := s.readFile(SessionsFile)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := json.Unmarshal(data, &records); err != nil {
			return 0, fmt.Errorf("decode %s: %w", SessionsFile, err)
		}
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return 0, fmt.Errorf("encode session: %w", err)
	}
	records = append(records, raw)

	if err := s.writeFile(SessionsFile, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// LoadProjects reads the project catalog, serving the seed catalog when the
// file is absent so the first-run experience stays smooth.
func (s *FileStore) LoadProjects(_ context.Context) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(ProjectsFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return core.SeedProjects(), nil
	}
	var projects []core.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ProjectsFile, err)
	}
	return projects, nil
}

func (s *FileStore) SaveProjects(_ context.Context, projects []core.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if projects == nil {
		projects = []core.Project{}
	}
	return s.writeFile(ProjectsFile, projects)
}

func (s *FileStore) LoadAchievements(_ context.Context) ([]core.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(AchievementsFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Achievement{}, nil
	}
	var achievements []core.Achievement
	if err := json.Unmarshal(data, &achievements); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AchievementsFile, err)
	}
	return achievements, nil
}

// SaveAchievements is the overwrite mode: the request body replaces the file.
func (s *FileStore) SaveAchievements(_ context.Context, achievements []core.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if achievements == nil {
		achievements = []core.Achievement{}
	}
	return s.writeFile(AchievementsFile, achievements)
}

// MergeAchievements is the distinct merge-by-id mode: incoming notes update
// existing ids in place and new ids append, so re-posting an existing note
// never grows the file. Concurrent merges race read-then-write; last writer
// wins, an accepted weakness.
func (s *FileStore) MergeAchievements(_ context.Context, incoming []core.Achievement) ([]core.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := []core.Achievement{}
	data, ok, err := s.readFile(AchievementsFile)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal(data, &existing); err != nil {
			return nil, fmt.Errorf("decode %s: %w", AchievementsFile, err)
		}
	}

	index := make(map[int64]int, len(existing))
	for i, a := range existing {
		index[a.ID] = i
	}
	for _, a := range incoming {
		if i, seen := index[a.ID]; seen {
			existing[i] = a
			continue
		}
		index[a.ID] = len(existing)
		existing = append(existing, a)
	}

	if err := s.writeFile(AchievementsFile, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *FileStore) LoadUploads(_ context.Context) ([]core.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(UploadsFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Upload{}, nil
	}
	var uploads []core.Upload
	if err := json.Unmarshal(data, &uploads); err != nil {
		return nil, fmt.Errorf("decode %s: %w", UploadsFile, err)
	}
	return uploads, nil
}

func (s *FileStore) SaveUploads(_ context.Context, uploads []core.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uploads == nil {
		uploads = []core.Upload{}
	}
	return s.writeFile(UploadsFile, uploads)
}

// exportCursor tracks how many sessions the sync worker has exported to the
// timesheet spreadsheet. Flat files have no row ids, so the worker keeps a
// count-based cursor instead.
type exportCursor struct {
	Exported int `json:"exported"`
}

// ExportCursor returns the number of sessions already exported.
func (s *FileStore) ExportCursor(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.readFile(cursorFile)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var c exportCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("decode %s: %w", cursorFile, err)
	}
	return c.Exported, nil
}

// SetExportCursor records the new exported count.
func (s *FileStore) SetExportCursor(_ context.Context, exported int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile(cursorFile, exportCursor{Exported: exported})
}
