// Package server implements the HTTP server for the government data
// gateway. It routes the public data plane, the access-request intake,
// and the management API, and owns server lifecycle.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/audit"
	"github.com/careconnect/data-gateway/internal/cache"
	"github.com/careconnect/data-gateway/internal/config"
	"github.com/careconnect/data-gateway/internal/database"
	"github.com/careconnect/data-gateway/internal/middleware"
)

// Version is the application version, following semantic versioning.
const Version = "0.1.0"

// Options carries the server's collaborators.
type Options struct {
	Config    *config.Config
	Logger    *zap.Logger
	Manager   *apikey.Manager
	Store     apikey.Store
	DB        *database.DB
	Cache     cache.Store
	Recorder  *audit.Recorder
	DataPlane http.Handler
}

// Server is the HTTP server for the gateway.
type Server struct {
	server    *http.Server
	config    *config.Config
	logger    *zap.Logger
	manager   *apikey.Manager
	store     apikey.Store
	db        *database.DB
	cache     cache.Store
	recorder  *audit.Recorder
	startTime time.Time
}

// HealthResponse is the response body for the health check endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime_seconds"`
}

// New creates the HTTP server and registers all routes. The server is
// not started until Start is called.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:    opts.Config,
		logger:    logger,
		manager:   opts.Manager,
		store:     opts.Store,
		db:        opts.DB,
		cache:     opts.Cache,
		recorder:  opts.Recorder,
		startTime: time.Now(),
	}

	wrap := middleware.Chain(middleware.RequestID(), middleware.AccessLog(logger))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)

	if opts.DataPlane != nil {
		mux.Handle("/api/", opts.DataPlane)
	}
	mux.HandleFunc("/api/access-requests", s.handleSubmitAccessRequest)

	mux.HandleFunc("/admin/keys", s.requireManagementAuth(s.handleKeys))
	mux.HandleFunc("/admin/keys/bulk-revoke", s.requireManagementAuth(s.handleBulkRevoke))
	mux.HandleFunc("/admin/keys/", s.requireManagementAuth(s.handleKeyByID))
	mux.HandleFunc("/admin/access-requests", s.requireManagementAuth(s.handleListAccessRequests))
	mux.HandleFunc("/admin/access-requests/", s.requireManagementAuth(s.handleAccessRequestByID))
	mux.HandleFunc("/admin/audit", s.requireManagementAuth(s.handleListAudit))
	mux.HandleFunc("/admin/cache/stats", s.requireManagementAuth(s.handleCacheStats))
	mux.HandleFunc("/admin/cache/purge", s.requireManagementAuth(s.handleCachePurge))

	s.server = &http.Server{
		Addr:         opts.Config.ListenAddr,
		Handler:      wrap(mux),
		ReadTimeout:  opts.Config.RequestTimeout,
		WriteTimeout: opts.Config.RequestTimeout,
		IdleTimeout:  opts.Config.RequestTimeout * 2,
	}

	return s, nil
}

// Start starts the HTTP server. It blocks until the server is shut down
// or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.config.ListenAddr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests and pending audit writes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.recorder != nil {
		s.recorder.Wait()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.logger.Error("readiness check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// requireManagementAuth checks the management token in the Authorization
// header before admitting admin requests.
func (s *Server) requireManagementAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) || len(header) <= len(prefix) {
			writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		if s.config.ManagementToken == "" || header[len(prefix):] != s.config.ManagementToken {
			writeError(w, http.StatusUnauthorized, "invalid management token")
			return
		}
		next(w, r)
	}
}

// actorFromRequest attributes an admin request for the audit trail. The
// management token is shared, so the caller names itself via header.
func actorFromRequest(r *http.Request) apikey.Actor {
	id := r.Header.Get("X-Admin-User")
	if id == "" {
		id = "admin"
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return apikey.Actor{ID: id, IPAddress: ip, UserAgent: r.UserAgent()}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
