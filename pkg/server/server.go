// Package server exposes siren over HTTP: demo capture, work execution and
// skill management for the browser extension, plus a websocket stream for
// DOM capture events.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/agent"
	"github.com/antoinenguyen27/siren/pkg/browser"
	"github.com/antoinenguyen27/siren/pkg/demo"
	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/history"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/memory"
	"github.com/antoinenguyen27/siren/pkg/presenter"
	"github.com/antoinenguyen27/siren/pkg/sites"
	"github.com/antoinenguyen27/siren/pkg/skills"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

const (
	maxBodyBytes          = 50 << 20
	defaultRequestTimeout = 120 * time.Second
	streamPath            = "/demo/dom/stream"
)

// Config holds the listener settings.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeout < 0 {
		return errors.Errorf("request timeout cannot be negative, got %s", c.RequestTimeout)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorkPage is the page work tasks run on.
type WorkPage interface {
	page.Page
	page.Navigator
}

// Browser is the browser connection the API drives.
type Browser interface {
	Start(ctx context.Context) (WorkPage, error)
	Attach(ctx context.Context, cdpURL, tabURL string) (demo.Page, error)
	CaptureInto(ctx context.Context, sessions *domcapture.Manager, tabID string) error
	Status() browser.Status
}

// Runner runs one work task.
type Runner interface {
	Run(ctx context.Context, env *agent.Env, transcript string) (agent.Report, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioBase64, mimeType string) string
}

// Deps are the components behind the API. History, Sites, Transcriber and
// Index are optional.
type Deps struct {
	Browser     Browser
	Agent       Runner
	Transcriber Transcriber
	Author      demo.SkillWriter
	Skills      *skills.Store
	Index       *skills.Index
	Captures    *domcapture.Manager
	Memory      *memory.Memory
	History     *history.Store
	Sites       *sites.Filter
}

// Server represents the HTTP API server
type Server struct {
	router *mux.Router
	config *Config
	server *http.Server

	browser     Browser
	agent       Runner
	transcriber Transcriber
	demo        *demo.Pipeline
	skills      *skills.Store
	index       *skills.Index
	captures    *domcapture.Manager
	memory      *memory.Memory
	history     *history.Store
	sites       *sites.Filter
	upgrader    websocket.Upgrader

	// one page: work tasks run one at a time
	workMu sync.Mutex
}

// NewServer creates a new API server
func NewServer(ctx context.Context, config *Config, deps Deps) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	switch {
	case deps.Browser == nil:
		return nil, errors.New("browser is required")
	case deps.Agent == nil:
		return nil, errors.New("agent is required")
	case deps.Author == nil:
		return nil, errors.New("skill author is required")
	case deps.Skills == nil:
		return nil, errors.New("skill store is required")
	}
	if deps.Captures == nil {
		deps.Captures = domcapture.NewManager()
	}
	if deps.Memory == nil {
		deps.Memory = memory.New()
	}
	if deps.Index == nil {
		deps.Index = skills.NewIndex(ctx, deps.Skills)
	}

	s := &Server{
		router:      mux.NewRouter(),
		config:      config,
		browser:     deps.Browser,
		agent:       deps.Agent,
		transcriber: deps.Transcriber,
		demo:        demo.New(deps.Browser.Attach, deps.Author, deps.Captures),
		skills:      deps.Skills,
		index:       deps.Index,
		captures:    deps.Captures,
		memory:      deps.Memory,
		history:     deps.History,
		sites:       deps.Sites,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the extension connects from a chrome-extension:// origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/demo/start", s.handleDemoStart).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/demo/voice-segment", s.handleVoiceSegment).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/demo/dom/start", s.handleDOMStart).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/demo/dom/stop", s.handleDOMStop).Methods("POST", "OPTIONS")
	s.router.HandleFunc(streamPath, s.handleDOMStream).Methods("GET")
	s.router.HandleFunc("/demo/tab-closed", s.handleTabClosed).Methods("POST", "OPTIONS")

	s.router.HandleFunc("/work/execute", s.handleWorkExecute).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/work/stop", s.handleWorkStop).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/work/history", s.handleWorkHistory).Methods("GET")

	s.router.HandleFunc("/skills", s.handleListSkills).Methods("GET")
	s.router.HandleFunc("/skills/{filename}", s.handleGetSkill).Methods("GET")
	s.router.HandleFunc("/skills/{filename}", s.handleDeleteSkill).Methods("DELETE", "OPTIONS")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.timeoutMiddleware)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds request handling. The websocket stream lives as
// long as its capture session.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == streamPath {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"ok":       true,
		"browser":  s.browser.Status(),
		"captures": len(s.captures.Active()),
	})
}

// Utility methods

// decodeBody reads a JSON body of at most maxBodyBytes into out. An empty
// body leaves out untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
	}
}

// writeErrorResponse writes {"error": message}, plus debugLogs when given.
func (s *Server) writeErrorResponse(ctx context.Context, w http.ResponseWriter, status int, message string, err error, debugLogs []string) {
	if err != nil {
		entry := logger.G(ctx).WithError(err)
		if status >= http.StatusInternalServerError {
			entry.Error(message)
		} else {
			entry.Warn(message)
		}
	}
	body := map[string]any{"error": message}
	if debugLogs != nil {
		body["debugLogs"] = debugLogs
	}
	s.writeJSONResponse(w, status, body)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	address := s.config.Address()
	s.server = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	presenter.Info("Starting siren server on http://" + address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Close ends capture sessions and stops the listener and the skills index
// watcher.
func (s *Server) Close() error {
	s.captures.StopAll()

	var result *multierror.Error
	if err := s.index.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "failed to close skills index"))
	}
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "failed to close listener"))
		}
	}
	return result.ErrorOrNil()
}
