package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookingsync/internal/clock"
	"bookingsync/internal/config"
	"bookingsync/internal/events"
	"bookingsync/internal/export"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Engine is the part of the offline service the API drives.
type Engine interface {
	AddToOfflineQueue(ctx context.Context, op models.Operation) (int, error)
	SyncOfflineData(ctx context.Context) bool
	Status() service.Status
	Pending() []models.Operation
}

// CycleLister reads the cycle audit trail.
type CycleLister interface {
	GetRecentSyncCycles(ctx context.Context, limit int) ([]models.SyncCycle, error)
}

// HTTPServer exposes the queue, the sync trigger and the event stream.
type HTTPServer struct {
	cfg    config.APIConfig
	engine Engine
	cycles CycleLister
	bus    *events.Bus[events.SyncEvent]
	clock  clock.Clock
	logger *zerolog.Logger
	server *http.Server
	auth   *HTTPAuth
	routes map[string]struct{}

	// baseCtx bounds sync cycles started from a request; request contexts
	// end with the response.
	baseCtx context.Context
}

// NewHTTPServer builds the server. cycles and bus may be nil; the matching
// endpoints then answer 404.
func NewHTTPServer(
	ctx context.Context,
	cfg config.APIConfig,
	engine Engine,
	cycles CycleLister,
	bus *events.Bus[events.SyncEvent],
	clk clock.Clock,
	logger *zerolog.Logger,
) *HTTPServer {
	if clk == nil {
		clk = clock.New()
	}
	srv := &HTTPServer{
		cfg:     cfg,
		engine:  engine,
		cycles:  cycles,
		bus:     bus,
		clock:   clk,
		logger:  logging.Component(logger, "http"),
		auth:    NewHTTPAuth(cfg),
		baseCtx: ctx,
	}

	routes := map[string]http.HandlerFunc{
		"/healthz":             srv.handleHealthz,
		"/api/v1/queue":        srv.handleQueue,
		"/api/v1/queue/export": srv.handleExport,
		"/api/v1/sync":         srv.handleSync,
		"/api/v1/sync/cycles":  srv.handleCycles,
		"/api/v1/events":       srv.handleEvents,
	}
	mux := http.NewServeMux()
	srv.routes = make(map[string]struct{}, len(routes))
	for path, h := range routes {
		mux.HandleFunc(path, h)
		srv.routes[path] = struct{}{}
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"online":       st.Online,
		"queue_length": st.QueueLength,
	})
}

type submitRequest struct {
	Kind       string          `json:"kind"`
	NaturalKey string          `json:"natural_key"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := map[string]any{"status": s.engine.Status()}
		if r.URL.Query().Get("include") == "pending" {
			resp["pending"] = s.engine.Pending()
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		s.submit(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) submit(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	var body submitRequest
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind := models.Kind(strings.TrimSpace(body.Kind))
	if kind == "" {
		kind = models.KindBooking
	}
	op := models.Operation{
		Kind:       kind,
		NaturalKey: strings.TrimSpace(body.NaturalKey),
		Payload:    body.Payload,
	}

	n, err := s.engine.AddToOfflineQueue(r.Context(), op)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queue_length": n,
		"key":          op.Key().CacheKey(),
	})
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	started := s.engine.SyncOfflineData(s.baseCtx)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started": started,
		"status":  s.engine.Status(),
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := s.clock.Now()
	var buf bytes.Buffer
	if err := export.WritePendingXLSX(&buf, s.engine.Pending(), now); err != nil {
		s.logger.Error().Err(err).Msg("Failed to build export")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	name := fmt.Sprintf("pending_%s.xlsx", now.Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleCycles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.cycles == nil {
		writeError(w, http.StatusNotFound, "cycle history is not enabled")
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	cycles, err := s.cycles.GetRecentSyncCycles(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sync cycles")
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	if cycles == nil {
		cycles = []models.SyncCycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

const (
	requestIDHeader = "X-Request-Id"
	routeOther      = "other"
)

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(s.routeLabel(r.URL.Path))
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// routeLabel bounds metric label values to the registered routes.
func (s *HTTPServer) routeLabel(path string) string {
	if _, ok := s.routes[path]; ok {
		return path
	}
	return routeOther
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
