package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tempo/internal/aggregate"
	"tempo/internal/amqp"
	"tempo/internal/catalog"
	"tempo/internal/core"
	"tempo/internal/period"
)

type createSessionRequest struct {
	Timestamp string  `json:"timestamp"`
	Hours     float64 `json:"hours"`
	Project   string  `json:"project"`
	Task      string  `json:"task"`
}

// handleCreateSession is the validated single-entry write path. Unlike the
// whole-file routes it rejects bad records instead of storing them.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "timestamp must be an ISO-8601 datetime")
		return
	}

	sess := core.Session{
		Timestamp: ts.In(s.loc),
		Hours:     req.Hours,
		Project:   sanitizeInput(req.Project),
		Task:      sanitizeInput(req.Task),
	}
	if err := sess.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	count, err := s.store.AppendSession(r.Context(), sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Append session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to write session")
		return
	}
	s.invalidateRollups()

	// Event delivery is best effort; the session is already on disk and the
	// worker's periodic catch-up covers a lost message.
	if s.publisher != nil {
		msg := amqp.NewSessionLoggedMessage(sess.Timestamp, sess.Hours, sess.Project, sess.Task)
		if err := s.publisher.PublishSessionLogged(r.Context(), msg); err != nil {
			slog.WarnContext(r.Context(), "Failed to publish session logged event", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "count": count})
}

type summaryResponse struct {
	Totals         aggregate.PeriodTotals   `json:"totals"`
	Previous       aggregate.PeriodTotals   `json:"previous"`
	Formatted      map[string]string        `json:"formatted"`
	TotalHours     float64                  `json:"totalHours"`
	Sessions       int                      `json:"sessions"`
	BestDay        aggregate.BestDay        `json:"bestDay"`
	AverageWorkday float64                  `json:"averageWorkday"`
	Streak         int                      `json:"streak"`
	Projects       []aggregate.ProjectHours `json:"projects"`
	LastSevenDays  []aggregate.DayRow       `json:"lastSevenDays"`
	YearOverview   []aggregate.MonthRow     `json:"yearOverview"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := s.now().In(s.loc)
	cacheKey := "summary:" + period.DayKey(now)
	if resp, ok := s.summaryCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	sessions, err := s.store.LoadSessions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Load sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sessions")
		return
	}

	agg := aggregate.New(sessions, s.loc, s.bands)
	totals := agg.Totals(now)
	projects := agg.HoursByProject()
	tasks := agg.HoursByProjectAndTask()
	for i := range projects {
		projects[i].Tasks = tasks[projects[i].Name]
	}

	resp := summaryResponse{
		Totals:   totals,
		Previous: agg.PreviousTotals(now),
		Formatted: map[string]string{
			"day":   formatHoursMinutes(totals.Day),
			"week":  formatHoursMinutes(totals.Week),
			"month": formatHoursMinutes(totals.Month),
			"year":  formatHoursMinutes(totals.Year),
		},
		TotalHours:     agg.TotalHours(),
		Sessions:       agg.SessionCount(),
		BestDay:        agg.Best(),
		AverageWorkday: agg.AverageWorkday(),
		Streak:         agg.CurrentStreak(now),
		Projects:       projects,
		LastSevenDays:  agg.LastNDays(now, 7),
		YearOverview:   agg.YearOverview(now),
	}

	s.summaryCache.Set(cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := s.now().In(s.loc)
	year := parseYear(r, now)
	cacheKey := "calendar:" + strconv.Itoa(year)
	if cells, ok := s.calendarCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, cells)
		return
	}

	sessions, err := s.store.LoadSessions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Load sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sessions")
		return
	}

	cells := aggregate.New(sessions, s.loc, s.bands).Calendar(year)
	s.calendarCache.Set(cacheKey, cells)
	writeJSON(w, http.StatusOK, cells)
}

type autocompleteResponse struct {
	Projects []string            `json:"projects"`
	Tasks    map[string][]string `json:"tasks"`
}

// handleAutocomplete merges catalog names with names found in the session
// history, so entries whose project was deleted from the catalog still
// suggest.
func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessions, err := s.store.LoadSessions(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Load sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read sessions")
		return
	}
	projects, err := s.store.LoadProjects(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Load projects failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read projects")
		return
	}

	cat := catalog.New(projects)
	writeJSON(w, http.StatusOK, autocompleteResponse{
		Projects: cat.Names(sessions),
		Tasks:    cat.TaskNames(sessions),
	})
}
