package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempo/internal/aggregate"
	"tempo/internal/amqp"
	"tempo/internal/cache"
	applog "tempo/internal/log"
	"tempo/internal/storage"
	appweb "tempo/web"
)

// EventPublisher notifies the sync worker about freshly logged sessions. A nil
// publisher disables eventing; writes still land on disk.
type EventPublisher interface {
	PublishSessionLogged(ctx context.Context, msg *amqp.SessionLoggedMessage) error
}

type Server struct {
	http.Server
	templates *template.Template
	store     *storage.FileStore
	publisher EventPublisher
	loc       *time.Location
	bands     aggregate.Thresholds

	rateLimiter *rateLimiter

	// Dashboard rollups are recomputed from the session file; these caches
	// absorb repeated reads between writes.
	summaryCache  *cache.LRU[summaryResponse]
	calendarCache *cache.LRU[[]aggregate.CalendarCell]
	janitor       *cache.Janitor

	shutdownOnce sync.Once

	// Overridable for deterministic handler tests.
	now func() time.Time
}

// Options carries the non-storage wiring for NewServer.
type Options struct {
	Publisher EventPublisher
	Location  *time.Location
	Bands     aggregate.Thresholds
	CacheTTL  time.Duration
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, store *storage.FileStore, opts Options) *Server {
	mux := http.NewServeMux()

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:         store,
		publisher:     opts.Publisher,
		loc:           opts.Location,
		bands:         opts.Bands,
		rateLimiter:   newRateLimiter(),
		summaryCache:  cache.NewLRU[summaryResponse](16, opts.CacheTTL),
		calendarCache: cache.NewLRU[[]aggregate.CalendarCell](16, opts.CacheTTL),
		janitor:       cache.NewJanitor(),
		now:           time.Now,
	}

	s.janitor.Register(s.summaryCache)
	s.janitor.Register(s.calendarCache)
	s.janitor.Start(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	// Collection files, served and replaced whole.
	mux.HandleFunc("/data.json", s.withSecurityHeaders(s.handleSessionsFile))
	mux.HandleFunc("/data", s.withSecurityHeaders(s.handleSessionsFile))
	mux.HandleFunc("/projects.json", s.withSecurityHeaders(s.handleProjectsFile))
	mux.HandleFunc("/achievements.json", s.withSecurityHeaders(s.handleAchievementsFile))
	mux.HandleFunc("/achievements", s.withSecurityHeaders(s.handleAchievementsMerge))
	mux.HandleFunc("/uploads.json", s.withSecurityHeaders(s.handleUploadsFile))

	// JSON API
	mux.HandleFunc("/api/sessions", s.withSecurityHeaders(s.handleCreateSession))
	mux.HandleFunc("/api/summary", s.withSecurityHeaders(s.handleSummary))
	mux.HandleFunc("/api/calendar", s.withSecurityHeaders(s.handleCalendar))
	mux.HandleFunc("/api/autocomplete", s.withSecurityHeaders(s.handleAutocomplete))

	return s
}

// invalidateRollups drops memoized dashboard responses after any write.
func (s *Server) invalidateRollups() {
	s.summaryCache.Clear()
	s.calendarCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.janitor.Stop()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ip := clientIP(r)
		requestID := "req_" + uuid.NewString()

		reqLog := applog.FromContext(r.Context()).
			WithComponent(applog.ComponentHTTP).
			With(applog.FieldRequestID, requestID)
		ctx := applog.IntoContext(context.WithValue(r.Context(), requestIDKey, requestID), reqLog)
		r = r.WithContext(ctx)

		reqLog.InfoContext(ctx, "Request started",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, ip,
			applog.FieldUserAgent, r.Header.Get("User-Agent"))

		// Rate limit writes only; dashboard reads are cheap and cached.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(ip) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", ip, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		reqLog.InfoContext(ctx, "Request completed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, duration.Milliseconds(),
			applog.FieldClientIP, ip)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := s.now().In(s.loc)
	data := struct {
		Today string
		Year  int
	}{
		Today: now.Format("Monday, 2 January 2006"),
		Year:  now.Year(),
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[ip]

	if !exists {
		rl.clients[ip] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}
