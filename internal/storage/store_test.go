package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tempo/internal/core"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store, err := New(t.TempDir(), loc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestLoadSessions_MissingFile(t *testing.T) {
	store := newTestStore(t)

	sessions, err := store.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions() error = %v", err)
	}
	if sessions == nil {
		t.Fatal("LoadSessions() = nil, want empty slice")
	}
	if len(sessions) != 0 {
		t.Errorf("LoadSessions() len = %d, want 0", len(sessions))
	}
}

func TestSessions_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := []core.Session{
		{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC), Hours: 2.5, Project: "Research", Task: "Reading"},
		{Timestamp: time.Date(2024, 5, 16, 14, 30, 0, 0, time.UTC), Hours: 1},
	}
	if err := store.SaveSessions(ctx, in); err != nil {
		t.Fatalf("SaveSessions() error = %v", err)
	}

	out, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("LoadSessions() len = %d, want 2", len(out))
	}
	if !out[0].Timestamp.Equal(in[0].Timestamp) {
		t.Errorf("timestamp = %v, want %v", out[0].Timestamp, in[0].Timestamp)
	}
	if out[0].Hours != 2.5 || out[0].Project != "Research" || out[0].Task != "Reading" {
		t.Errorf("session = %+v, want original fields", out[0])
	}
	if out[0].Timestamp.Location().String() != "Australia/Sydney" {
		t.Errorf("location = %v, want Australia/Sydney", out[0].Timestamp.Location())
	}
}

func TestLoadSessions_SkipsMalformedRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	raw := `[
	  {"timestamp":"2024-05-15T09:00:00+10:00","hours":2,"project":"Research"},
	  {"timestamp":"not-a-date","hours":1},
	  {"timestamp":"2024-05-16T09:00:00+10:00","hours":"two"},
	  {"timestamp":"2024-05-17T09:00:00+10:00","hours":3}
	]`
	if err := os.WriteFile(filepath.Join(store.dir, SessionsFile), []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	sessions, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("LoadSessions() len = %d, want 2 (malformed skipped)", len(sessions))
	}
	if sessions[0].Project != "Research" || sessions[1].Hours != 3 {
		t.Errorf("unexpected surviving sessions: %+v", sessions)
	}
}

func TestAppendSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := core.Session{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC), Hours: 1}
	count, err := store.AppendSession(ctx, first)
	if err != nil {
		t.Fatalf("AppendSession() error = %v", err)
	}
	if count != 1 {
		t.Errorf("AppendSession() count = %d, want 1", count)
	}

	second := core.Session{Timestamp: time.Date(2024, 5, 15, 11, 0, 0, 0, time.UTC), Hours: 2, Project: "Video"}
	count, err = store.AppendSession(ctx, second)
	if err != nil {
		t.Fatalf("AppendSession() error = %v", err)
	}
	if count != 2 {
		t.Errorf("AppendSession() count = %d, want 2", count)
	}

	sessions, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[1].Project != "Video" {
		t.Errorf("sessions after append = %+v", sessions)
	}
}

func TestAppendSession_PreservesUnreadableRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Records the read path skips must still survive an append; skipping is a
	// read-side policy, never a license to rewrite the file without them.
	raw := `[
	  {"timestamp":"2024-05-15T09:00:00+10:00","hours":2,"project":"Research"},
	  {"timestamp":"not-a-date","hours":1,"project":"Keep Me"}
	]`
	if err := os.WriteFile(filepath.Join(store.dir, SessionsFile), []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	count, err := store.AppendSession(ctx, core.Session{
		Timestamp: time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC),
		Hours:     3,
		Project:   "Video",
	})
	if err != nil {
		t.Fatalf("AppendSession() error = %v", err)
	}
	if count != 3 {
		t.Errorf("AppendSession() count = %d, want 3 (all stored records plus one)", count)
	}

	data, err := os.ReadFile(filepath.Join(store.dir, SessionsFile))
	if err != nil {
		t.Fatalf("read sessions file: %v", err)
	}
	var stored []map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("decode sessions file: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored records = %d, want 3", len(stored))
	}
	if stored[1]["project"] != "Keep Me" || stored[1]["timestamp"] != "not-a-date" {
		t.Errorf("unreadable record rewritten or dropped: %v", stored[1])
	}
	if stored[2]["project"] != "Video" {
		t.Errorf("appended record = %v, want Video last", stored[2])
	}
}

func TestAppendSession_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AppendSession(ctx, core.Session{
				Timestamp: time.Date(2024, 5, 15, i, 0, 0, 0, time.UTC),
				Hours:     1,
			})
			if err != nil {
				t.Errorf("AppendSession() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	sessions, err := store.LoadSessions(ctx)
	if err != nil {
		t.Fatalf("LoadSessions() error = %v", err)
	}
	if len(sessions) != n {
		t.Fatalf("sessions after concurrent appends = %d, want %d", len(sessions), n)
	}
}

func TestLoadProjects_SeedsDefaults(t *testing.T) {
	store := newTestStore(t)

	projects, err := store.LoadProjects(context.Background())
	if err != nil {
		t.Fatalf("LoadProjects() error = %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("LoadProjects() len = %d, want 3 seed projects", len(projects))
	}

	// The seed must not be written to disk; only explicit saves create files.
	if _, err := os.Stat(filepath.Join(store.dir, ProjectsFile)); !os.IsNotExist(err) {
		t.Errorf("projects file exists after seeded read, stat err = %v", err)
	}
}

func TestMergeAchievements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	initial := []core.Achievement{
		{ID: 100, DateString: "2024-05-14", Text: "first"},
		{ID: 200, DateString: "2024-05-15", Text: "second"},
	}
	if err := store.SaveAchievements(ctx, initial); err != nil {
		t.Fatalf("SaveAchievements() error = %v", err)
	}

	merged, err := store.MergeAchievements(ctx, []core.Achievement{
		{ID: 200, DateString: "2024-05-15", Text: "second, edited"},
		{ID: 300, DateString: "2024-05-16", Text: "third"},
	})
	if err != nil {
		t.Fatalf("MergeAchievements() error = %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("MergeAchievements() len = %d, want 3", len(merged))
	}
	if merged[1].Text != "second, edited" {
		t.Errorf("merged[1].Text = %q, want updated in place", merged[1].Text)
	}
	if merged[2].ID != 300 {
		t.Errorf("merged[2].ID = %d, want appended 300", merged[2].ID)
	}

	// Re-posting the same payload must not grow the file.
	again, err := store.MergeAchievements(ctx, []core.Achievement{
		{ID: 300, DateString: "2024-05-16", Text: "third"},
	})
	if err != nil {
		t.Fatalf("MergeAchievements() error = %v", err)
	}
	if len(again) != 3 {
		t.Errorf("MergeAchievements() repost len = %d, want 3", len(again))
	}
}

func TestSaveWritesPrettyJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveUploads(ctx, []core.Upload{{ID: "u1", Title: "clip"}}); err != nil {
		t.Fatalf("SaveUploads() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(store.dir, UploadsFile))
	if err != nil {
		t.Fatalf("read uploads file: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("uploads file not indented:\n%s", data)
	}
	var parsed []core.Upload
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("uploads file not valid JSON: %v", err)
	}
}

func TestLoadRaw_MissingFileIsEmptyArray(t *testing.T) {
	store := newTestStore(t)

	v, err := store.LoadRaw(context.Background(), SessionsFile)
	if err != nil {
		t.Fatalf("LoadRaw() error = %v", err)
	}
	arr, ok := v.([]any)
	if !ok {
		t.Fatalf("LoadRaw() = %T, want []any", v)
	}
	if len(arr) != 0 {
		t.Errorf("LoadRaw() len = %d, want 0", len(arr))
	}
}

func TestExportCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cursor, err := store.ExportCursor(ctx)
	if err != nil {
		t.Fatalf("ExportCursor() error = %v", err)
	}
	if cursor != 0 {
		t.Errorf("ExportCursor() = %d, want 0 before any sync", cursor)
	}

	if err := store.SetExportCursor(ctx, 7); err != nil {
		t.Fatalf("SetExportCursor() error = %v", err)
	}
	cursor, err = store.ExportCursor(ctx)
	if err != nil {
		t.Fatalf("ExportCursor() error = %v", err)
	}
	if cursor != 7 {
		t.Errorf("ExportCursor() = %d, want 7", cursor)
	}
}
