package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/adobe/aem-sidekick-sub001/internal/app"
	"github.com/adobe/aem-sidekick-sub001/internal/auth"
	"github.com/adobe/aem-sidekick-sub001/internal/logging"
	"github.com/adobe/aem-sidekick-sub001/internal/project"
	"github.com/adobe/aem-sidekick-sub001/internal/storage"
	"github.com/adobe/aem-sidekick-sub001/internal/tabs"

	_ "modernc.org/sqlite" // SQLite driver
)

// Server is the HTTP + WebSocket API surface for the sidekick service.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	store    storage.Store
}

// NewServer creates a new Server with its own Application. An empty
// StorageRoot wires an in-memory store, which is what tests use.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
		cfg.AppConfig.StorageRoot = ""
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	var store storage.Store
	if cfg.AppConfig.StorageRoot == "" {
		store = storage.NewMemoryStore()
	} else {
		storageRoot, err := expandPath(cfg.AppConfig.StorageRoot)
		if err != nil {
			return nil, fmt.Errorf("expanding storage root path: %w", err)
		}
		cfg.AppConfig.StorageRoot = storageRoot
		if err := os.MkdirAll(storageRoot, 0755); err != nil {
			logger.Warn("creating storage root directory",
				logging.Field{Key: "path", Value: storageRoot},
				logging.Field{Key: "error", Value: err.Error()})
		}

		db, err := sql.Open("sqlite", filepath.Join(storageRoot, "sidekick.db"))
		if err != nil {
			return nil, fmt.Errorf("opening config store database: %w", err)
		}
		store, err = storage.NewSQLiteStore(db, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating config store: %w", err)
		}
	}

	application, err := app.NewApplication(cfg.AppConfig, store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating application: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		app:    application,
		router: r,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
		store: store,
	}

	s.routes()
	return s, nil
}

// App returns the underlying application for advanced use (tests, etc.).
func (s *Server) App() *app.Application {
	return s.app
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/projects", s.optionsHandler("GET, POST"))
	r.Options("/projects/{owner}/{repo}", s.optionsHandler("DELETE"))
	r.Options("/projects/{owner}/{repo}/toggle", s.optionsHandler("POST"))
	r.Options("/match", s.optionsHandler("POST"))
	r.Options("/tabs/events", s.optionsHandler("POST"))
	r.Options("/cache", s.optionsHandler("GET"))
	r.Options("/auth/token", s.optionsHandler("POST"))

	// Projects
	r.Post("/projects", s.handleAddProject)
	r.Get("/projects", s.handleListProjects)
	r.Delete("/projects/{owner}/{repo}", s.handleDeleteProject)
	r.Post("/projects/{owner}/{repo}/toggle", s.handleToggleProject)

	// Matching
	r.Post("/match", s.handleMatch)

	// Tab lifecycle
	r.Post("/tabs/events", s.handleTabEvent)
	r.Get("/ws/tabs", s.handleTabsWS)

	// Discovery cache introspection
	r.Get("/cache", s.handleGetCache)

	// Login callback
	r.Post("/auth/token", s.handleAuthToken)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the application and the config store.
func (s *Server) Close() {
	if s.app != nil {
		s.app.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return filepath.Clean(p), nil
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- HTTP handlers ---

func (s *Server) handleAddProject(w http.ResponseWriter, r *http.Request) {
	var body project.AddOptions
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	p, err := s.app.Registry.Add(r.Context(), body)
	if err != nil {
		if errors.Is(err, project.ErrProjectExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Warn("adding project", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("added project", logging.Field{Key: "project", Value: p.Key()})
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.app.Registry.All(r.Context())
	if err != nil {
		s.logger.Warn("listing projects", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	existed, err := s.app.Registry.Delete(r.Context(), owner, repo)
	if err != nil {
		s.logger.Warn("deleting project", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "project not registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleToggleProject(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	toggled, err := s.app.Registry.Toggle(r.Context(), owner, repo)
	if err != nil {
		s.logger.Warn("toggling project", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !toggled {
		writeError(w, http.StatusNotFound, "project not registered")
		return
	}
	p, _, err := s.app.Registry.Get(r.Context(), owner, repo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}

	matches, err := s.app.Matcher.Matches(r.Context(), body.URL)
	if err != nil {
		s.logger.Warn("matching url", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleTabEvent(w http.ResponseWriter, r *http.Request) {
	var ev tabs.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	dec, err := s.app.Controller.Handle(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleGetCache(w http.ResponseWriter, r *http.Request) {
	tabURL := r.URL.Query().Get("url")
	if tabURL == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}

	results, err := s.app.Cache.Get(r.Context(), tabURL)
	if err != nil {
		s.logger.Warn("reading cache", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LoginID string `json:"loginId"`
		Owner   string `json:"owner"`
		Token   string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	if body.Owner != "" {
		if err := s.app.Tokens.Set(r.Context(), body.Owner, body.Token); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if body.LoginID != "" {
		if err := s.app.Broker.Complete(body.LoginID, body.Token); err != nil {
			if errors.Is(err, auth.ErrUnknownLogin) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleTabsWS streams tab decisions: the client sends tab events as JSON
// messages and receives one decision per event.
func (s *Server) handleTabsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	for {
		var ev tabs.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", logging.Field{Key: "error", Value: err.Error()})
			}
			return
		}

		dec, err := s.app.Controller.Handle(r.Context(), ev)
		if err != nil {
			if werr := conn.WriteJSON(map[string]string{"error": err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(dec); err != nil {
			return
		}
	}
}
