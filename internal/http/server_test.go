package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tempo/internal/aggregate"
	"tempo/internal/amqp"
	"tempo/internal/core"
	"tempo/internal/storage"
)

type fakePublisher struct{ published []*amqp.SessionLoggedMessage }

func (f *fakePublisher) PublishSessionLogged(ctx context.Context, msg *amqp.SessionLoggedMessage) error {
	f.published = append(f.published, msg)
	return nil
}

func newTestServer(t *testing.T) (*Server, *storage.FileStore) {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store, err := storage.New(t.TempDir(), loc)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	srv := NewServer(":0", store, Options{
		Location: loc,
		Bands:    aggregate.DefaultThresholds(),
		CacheTTL: time.Minute,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/", "")
	if rr.Code != 200 {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "tempo") {
		t.Fatalf("index body missing heading")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "")
		if rr.Code != 200 {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/data.json", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestSessionsFile_EmptyThenRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/data.json", "")
	if rr.Code != 200 {
		t.Fatalf("GET /data.json status=%d", rr.Code)
	}
	var empty []any
	if err := json.Unmarshal(rr.Body.Bytes(), &empty); err != nil {
		t.Fatalf("GET /data.json body not an array: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("GET /data.json len=%d, want 0", len(empty))
	}

	payload := `[{"timestamp":"2024-05-15T09:00:00+10:00","hours":2,"project":"Research"}]`
	rr = do(srv, http.MethodPost, "/data.json", payload)
	if rr.Code != 200 {
		t.Fatalf("POST /data.json status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(srv, http.MethodGet, "/data.json", "")
	var stored []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode stored sessions: %v", err)
	}
	if len(stored) != 1 || stored[0]["project"] != "Research" {
		t.Fatalf("stored sessions = %v", stored)
	}
}

func TestSessionsFile_RejectsNonArray(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodPost, "/data.json", `{"not":"an array"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("POST /data.json status=%d, want 400", rr.Code)
	}
}

func TestProjectsFile_SeedsDefaults(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/projects.json", "")
	if rr.Code != 200 {
		t.Fatalf("GET /projects.json status=%d", rr.Code)
	}
	var projects []core.Project
	if err := json.Unmarshal(rr.Body.Bytes(), &projects); err != nil {
		t.Fatalf("decode projects: %v", err)
	}
	if len(projects) != 3 {
		t.Fatalf("seeded projects len=%d, want 3", len(projects))
	}
}

func TestAchievementsMerge_Deduplicates(t *testing.T) {
	srv, store := newTestServer(t)

	payload := `[{"id":100,"dateString":"2024-05-15","text":"did a thing"}]`
	rr := do(srv, http.MethodPost, "/achievements", payload)
	if rr.Code != 200 {
		t.Fatalf("POST /achievements status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Re-posting the same note must not grow the file.
	rr = do(srv, http.MethodPost, "/achievements", payload)
	if rr.Code != 200 {
		t.Fatalf("repost status=%d", rr.Code)
	}

	achievements, err := store.LoadAchievements(context.Background())
	if err != nil {
		t.Fatalf("LoadAchievements: %v", err)
	}
	if len(achievements) != 1 {
		t.Fatalf("achievements len=%d, want 1 after duplicate merge", len(achievements))
	}

	// The overwrite route replaces the file wholesale.
	rr = do(srv, http.MethodPost, "/achievements.json", `[]`)
	if rr.Code != 200 {
		t.Fatalf("POST /achievements.json status=%d", rr.Code)
	}
	achievements, _ = store.LoadAchievements(context.Background())
	if len(achievements) != 0 {
		t.Fatalf("achievements len=%d after overwrite, want 0", len(achievements))
	}
}

func TestAchievementsMerge_RejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodPost, "/achievements", `[{"id":1,"dateString":"15/05/2024","text":"bad date"}]`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
}

func TestCreateSession(t *testing.T) {
	srv, store := newTestServer(t)
	pub := &fakePublisher{}
	srv.publisher = pub

	// Wrong method
	rr := do(srv, http.MethodGet, "/api/sessions", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// Bad timestamp
	rr = do(srv, http.MethodPost, "/api/sessions", `{"timestamp":"yesterday","hours":1}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad timestamp, got %d", rr.Code)
	}

	// Non-positive hours
	rr = do(srv, http.MethodPost, "/api/sessions", `{"timestamp":"2024-05-15T09:00:00+10:00","hours":0}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for zero hours, got %d", rr.Code)
	}

	// Success
	rr = do(srv, http.MethodPost, "/api/sessions", `{"timestamp":"2024-05-15T09:00:00+10:00","hours":2.5,"project":"Research","task":"Reading"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	sessions, err := store.LoadSessions(context.Background())
	if err != nil {
		t.Fatalf("LoadSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Project != "Research" {
		t.Fatalf("sessions = %+v", sessions)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published events = %d, want 1", len(pub.published))
	}
	if pub.published[0].Hours != 2.5 {
		t.Fatalf("published hours = %v", pub.published[0].Hours)
	}
}

func TestSummary(t *testing.T) {
	srv, store := newTestServer(t)
	loc := srv.loc

	now := time.Date(2024, 5, 15, 18, 0, 0, 0, loc)
	srv.now = func() time.Time { return now }

	err := store.SaveSessions(context.Background(), []core.Session{
		{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, loc), Hours: 2.5, Project: "ProjA", Task: "T1"},
		{Timestamp: time.Date(2024, 5, 15, 14, 0, 0, 0, loc), Hours: 1, Project: "ProjA", Task: "T2"},
		{Timestamp: time.Date(2024, 5, 14, 9, 0, 0, 0, loc), Hours: 4, Project: "ProjB"},
	})
	if err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	rr := do(srv, http.MethodGet, "/api/summary", "")
	if rr.Code != 200 {
		t.Fatalf("GET /api/summary status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp summaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if resp.Totals.Day != 3.5 {
		t.Errorf("day total = %v, want 3.5", resp.Totals.Day)
	}
	if resp.Totals.Week != 7.5 {
		t.Errorf("week total = %v, want 7.5", resp.Totals.Week)
	}
	if resp.Streak != 2 {
		t.Errorf("streak = %d, want 2", resp.Streak)
	}
	if resp.Formatted["day"] != "3h 30m" {
		t.Errorf("formatted day = %q, want 3h 30m", resp.Formatted["day"])
	}
	if len(resp.Projects) != 2 {
		t.Fatalf("projects len=%d, want 2", len(resp.Projects))
	}
	if resp.Projects[0].Name != "ProjB" {
		t.Errorf("projects[0] = %q, want ProjB first (most hours)", resp.Projects[0].Name)
	}
	if resp.Projects[1].Tasks["T1"] != 2.5 {
		t.Errorf("ProjA tasks = %v", resp.Projects[1].Tasks)
	}
}

func TestSummaryCacheInvalidatedByWrite(t *testing.T) {
	srv, _ := newTestServer(t)
	loc := srv.loc
	srv.now = func() time.Time { return time.Date(2024, 5, 15, 18, 0, 0, 0, loc) }

	rr := do(srv, http.MethodGet, "/api/summary", "")
	var before summaryResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &before)
	if before.Totals.Day != 0 {
		t.Fatalf("fresh summary day = %v, want 0", before.Totals.Day)
	}

	rr = do(srv, http.MethodPost, "/api/sessions", `{"timestamp":"2024-05-15T09:00:00+10:00","hours":2}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status=%d", rr.Code)
	}

	rr = do(srv, http.MethodGet, "/api/summary", "")
	var after summaryResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &after)
	if after.Totals.Day != 2 {
		t.Fatalf("summary after write day = %v, want 2 (cache invalidated)", after.Totals.Day)
	}
}

func TestCalendar(t *testing.T) {
	srv, store := newTestServer(t)
	loc := srv.loc
	srv.now = func() time.Time { return time.Date(2024, 5, 15, 18, 0, 0, 0, loc) }

	err := store.SaveSessions(context.Background(), []core.Session{
		{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, loc), Hours: 3.5, Project: "ProjA"},
	})
	if err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	rr := do(srv, http.MethodGet, "/api/calendar?year=2024", "")
	if rr.Code != 200 {
		t.Fatalf("GET /api/calendar status=%d", rr.Code)
	}
	var cells []aggregate.CalendarCell
	if err := json.Unmarshal(rr.Body.Bytes(), &cells); err != nil {
		t.Fatalf("decode calendar: %v", err)
	}
	if len(cells) != 366 {
		t.Fatalf("calendar cells = %d, want 366", len(cells))
	}
	for _, c := range cells {
		if c.Date == "2024-05-15" {
			if c.Band != aggregate.BandMedium || c.Sessions != 1 {
				t.Fatalf("cell = %+v, want medium band with 1 session", c)
			}
			return
		}
	}
	t.Fatal("2024-05-15 cell not found")
}

func TestAutocomplete(t *testing.T) {
	srv, store := newTestServer(t)
	loc := srv.loc

	err := store.SaveSessions(context.Background(), []core.Session{
		{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, loc), Hours: 1, Project: "Orphaned", Task: "Digging"},
	})
	if err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	rr := do(srv, http.MethodGet, "/api/autocomplete", "")
	if rr.Code != 200 {
		t.Fatalf("GET /api/autocomplete status=%d", rr.Code)
	}
	var resp autocompleteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode autocomplete: %v", err)
	}

	found := false
	for _, name := range resp.Projects {
		if name == "Orphaned" {
			found = true
		}
	}
	if !found {
		t.Fatalf("projects %v missing session-only name", resp.Projects)
	}
	if len(resp.Tasks["Orphaned"]) != 1 || resp.Tasks["Orphaned"][0] != "Digging" {
		t.Fatalf("tasks = %v", resp.Tasks)
	}
}

func TestFormatHoursMinutes(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0, "0h"},
		{0.5, "30m"},
		{1, "1h"},
		{3.5, "3h 30m"},
		{2.25, "2h 15m"},
		{8, "8h"},
	}
	for _, tt := range tests {
		if got := formatHoursMinutes(tt.hours); got != tt.want {
			t.Errorf("formatHoursMinutes(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}
