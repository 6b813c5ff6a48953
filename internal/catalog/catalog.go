// Package catalog reconciles the explicit project/task catalog with the
// implicit set of names found in the session history. Sessions join the
// catalog by name at read time; orphaned or ambiguous names are tolerated and
// still rendered.
package catalog

import (
	"strings"

	"tempo/internal/core"
)

// FallbackColor is used for sessions whose project matches no catalog entry.
const FallbackColor = "#CCCCCC"

// Catalog wraps the explicit project list with lookup helpers.
type Catalog struct {
	projects []core.Project
}

func New(projects []core.Project) *Catalog {
	return &Catalog{projects: projects}
}

// Projects returns the underlying catalog entries.
func (c *Catalog) Projects() []core.Project { return c.projects }

// ColorFor resolves a project bar color: exact name match first, then
// case-insensitive, then the fallback placeholder.
func (c *Catalog) ColorFor(name string) string {
	for _, p := range c.projects {
		if p.Name == name {
			return p.Color
		}
	}
	for _, p := range c.projects {
		if strings.EqualFold(p.Name, name) {
			return p.Color
		}
	}
	return FallbackColor
}

// Names merges catalog project names with distinct project names from the
// session history, preserving first-seen order. This feeds autocomplete, so
// sessions whose project lost its catalog entry still appear.
func (c *Catalog) Names(sessions []core.Session) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, p := range c.projects {
		add(p.Name)
	}
	for _, s := range sessions {
		add(s.Project)
	}
	return out
}

// TaskNames merges catalog task names with distinct task names from the
// session history, keyed per project display name.
func (c *Catalog) TaskNames(sessions []core.Session) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	add := func(project, task string) {
		task = strings.TrimSpace(task)
		if task == "" {
			return
		}
		if seen[project] == nil {
			seen[project] = make(map[string]struct{})
		}
		if _, ok := seen[project][task]; ok {
			return
		}
		seen[project][task] = struct{}{}
		out[project] = append(out[project], task)
	}
	for _, p := range c.projects {
		for _, t := range p.Tasks {
			add(p.Name, t.Name)
		}
	}
	for _, s := range sessions {
		add(s.DisplayProject(), s.Task)
	}
	return out
}

// TaskIndex maps each task name to the projects that claim it, used to
// resolve legacy sessions that stored a task name in the project field.
func (c *Catalog) TaskIndex() map[string][]string {
	idx := make(map[string][]string)
	for _, p := range c.projects {
		for _, t := range p.Tasks {
			idx[t.Name] = append(idx[t.Name], p.Name)
		}
	}
	return idx
}

// MigrationStats summarizes a legacy migration pass.
type MigrationStats struct {
	Untouched int
	Resolved  int
	Ambiguous int
	Unmatched int
}

// MigrateLegacy rewrites sessions from the historical schema where the
// project field held a task name. A session already carrying both fields
// passes through untouched. Otherwise the stored value is treated as a task
// name and resolved against the task index: a unique owner claims it, an
// ambiguous one maps to the Unknown sentinel, and no match falls back to the
// default project. One-shot offline migration, not a runtime path.
func (c *Catalog) MigrateLegacy(sessions []core.Session) ([]core.Session, MigrationStats) {
	idx := c.TaskIndex()
	out := make([]core.Session, 0, len(sessions))
	var stats MigrationStats
	for _, s := range sessions {
		if s.Project != "" && s.Task != "" {
			stats.Untouched++
			out = append(out, s)
			continue
		}
		taskName := s.Project
		owners := idx[taskName]
		switch {
		case len(owners) == 1:
			s.Project = owners[0]
			stats.Resolved++
		case len(owners) > 1:
			s.Project = core.UnknownProject
			stats.Ambiguous++
		default:
			s.Project = core.DefaultProject
			stats.Unmatched++
		}
		s.Task = taskName
		out = append(out, s)
	}
	return out, stats
}
