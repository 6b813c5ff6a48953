package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	// DefaultProject is assigned to sessions logged without an explicit project.
	DefaultProject = "General"

	// UnknownProject marks sessions whose legacy project field could not be
	// resolved unambiguously during migration.
	UnknownProject = "Unknown"

	maxTextLength = 500
)

type (
	// Session is one logged block of work time. The timestamp carries an
	// explicit zone offset; conversion to the dashboard timezone happens once
	// at the ingestion boundary, never inside aggregation.
	Session struct {
		Timestamp time.Time `json:"timestamp"`
		Hours     float64   `json:"hours"`
		Project   string    `json:"project,omitempty"`
		Task      string    `json:"task,omitempty"`
	}

	// Task is a named unit of work nested under its parent project.
	Task struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}

	// Project is a catalog entry. ID is a string in recent files but a number
	// in historical ones, so it round-trips as-is.
	Project struct {
		ID    any    `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
		Tasks []Task `json:"tasks,omitempty"`
	}

	// Achievement is a daily note. ID is the creation epoch millis and serves
	// as identity for merge and dedupe.
	Achievement struct {
		ID         int64  `json:"id"`
		DateString string `json:"dateString"`
		Text       string `json:"text"`
	}

	// Upload is one entry of the published-items changelog, independent of
	// sessions. ThumbnailURL is a data URI or null.
	Upload struct {
		ID           string  `json:"id"`
		Title        string  `json:"title"`
		UploadDate   string  `json:"uploadDate"`
		ThumbnailURL *string `json:"thumbnailUrl"`
		CreatedAt    string  `json:"createdAt"`
	}
)

var (
	ErrZeroTimestamp = errors.New("timestamp cannot be zero")
	ErrInvalidHours  = errors.New("hours must be a positive finite number")
	ErrEmptyNoteText = errors.New("empty note text")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyName     = errors.New("empty name")
	ErrTextTooLong   = errors.New("text too long")
	ErrDuplicateTask = errors.New("duplicate task name within project")
)

// Validate checks a session on the write path. Read paths never validate;
// malformed stored records are skipped at load instead.
func (s Session) Validate() error {
	if s.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if s.Hours <= 0 || math.IsNaN(s.Hours) || math.IsInf(s.Hours, 0) {
		return ErrInvalidHours
	}
	return nil
}

// DisplayProject returns the project name, falling back to DefaultProject.
func (s Session) DisplayProject() string {
	if strings.TrimSpace(s.Project) == "" {
		return DefaultProject
	}
	return s.Project
}

func (a Achievement) Validate() error {
	if len(strings.TrimSpace(a.Text)) == 0 {
		return ErrEmptyNoteText
	}
	if len(a.Text) > maxTextLength {
		return ErrTextTooLong
	}
	if _, err := time.Parse("2006-01-02", a.DateString); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Date parses the achievement's ISO date string.
func (a Achievement) Date() (time.Time, error) {
	return time.Parse("2006-01-02", a.DateString)
}

// Validate checks catalog invariants: a non-empty name and unique task names
// within the project. Historical files violate the latter, so this runs only
// when creating or editing catalog entries, never on load.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	seen := make(map[string]struct{}, len(p.Tasks))
	for _, t := range p.Tasks {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" {
			return ErrEmptyName
		}
		if _, dup := seen[key]; dup {
			return ErrDuplicateTask
		}
		seen[key] = struct{}{}
	}
	return nil
}

// SeedProjects is the default catalog served when projects.json is absent,
// matching the original first-run behavior.
func SeedProjects() []Project {
	return []Project{
		{ID: float64(1), Name: "Research", Color: "#FF6B6B"},
		{ID: float64(2), Name: "general", Color: "#4ECDC4"},
		{ID: float64(3), Name: "Video", Color: "#45B7D1"},
	}
}
