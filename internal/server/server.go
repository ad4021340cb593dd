package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"servicetracker/internal/metrics"
	"servicetracker/internal/models"
	"servicetracker/internal/tracker"
)

//go:embed static/*
var embeddedStatic embed.FS

const defaultListLimit = 500

// Server wraps HTTP serving of API + static assets.
type Server struct {
	httpServer   *http.Server
	log          *tracker.Log
	feed         *feed
	staticFS     fs.FS
	logger       *slog.Logger
	listLimit    int
	pushInterval time.Duration
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPushInterval sets how often websocket clients receive a fresh snapshot.
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pushInterval = d
		}
	}
}

// New creates a configured HTTP server for the service log.
func New(addr string, log *tracker.Log, opts ...Option) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		log:          log,
		feed:         newFeed(),
		staticFS:     staticFS,
		logger:       slog.Default(),
		listLimit:    defaultListLimit,
		pushInterval: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Subscribe(s.feed.publish)
	s.registerRoutes(mux)
	return s
}

// Handler exposes the routing table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	fileServer := http.FileServer(http.FS(s.staticFS))

	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data, err := fs.ReadFile(s.staticFS, "index.html")
		if err != nil {
			http.Error(w, "index missing", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}))
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("GET /api/services", s.handleList)
	mux.HandleFunc("POST /api/services", s.handleStart)
	mux.HandleFunc("GET /api/services/{id}", s.handleGet)
	mux.HandleFunc("POST /api/services/{id}/end", s.handleEnd)
	mux.HandleFunc("POST /api/services/index/{index}/end", s.handleEndAt)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/ws", s.handleFeed)
	mux.Handle("GET /metrics", metrics.Handler())
}

type startRequest struct {
	Name  string `json:"name"`
	Range string `json:"range"`
}

type listResponse struct {
	Services []models.ServiceRecord `json:"services"`
	Total    int                    `json:"total"`
}

type summaryResponse struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Totals      []metrics.WeeklyTotal `json:"totals"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	services := s.log.Search(r.URL.Query().Get("q"))
	total := len(services)
	limit := parseLimit(r, s.listLimit)
	if limit > 0 && len(services) > limit {
		services = services[len(services)-limit:]
	}
	writeJSON(w, http.StatusOK, listResponse{Services: services, Total: total})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.log.Start(r.Context(), req.Name, req.Range)
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.log.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, tracker.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	rec, err := s.log.End(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEndAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	rec, err := s.log.EndAt(r.Context(), index)
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.summary())
}

func (s *Server) summary() summaryResponse {
	totals := s.log.WeeklySummary()
	if totals == nil {
		totals = []metrics.WeeklyTotal{}
	}
	return summaryResponse{GeneratedAt: time.Now().UTC(), Totals: totals}
}

func (s *Server) writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound), errors.Is(err, tracker.ErrIndexOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("tracker operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
