package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	orchestrator "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

const maxRequestBodyBytes = 64 << 10

// TurnProcessor is the conversation core the HTTP shell exposes.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, sessionID string, text string) (orchestrator.TurnResult, error)
	GetState(ctx context.Context, sessionID string) (*statex.ConversationState, error)
}

type Option func(*Server)

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

func WithSessionIDs(next func() string) Option {
	return func(s *Server) {
		if next != nil {
			s.newSessionID = next
		}
	}
}

// WithTurnTimeout bounds a single turn, including discovery calls.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.turnTimeout = d
	}
}

type Server struct {
	router       *chi.Mux
	turns        TurnProcessor
	gatherer     prometheus.Gatherer
	newSessionID func() string
	turnTimeout  time.Duration
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(turns TurnProcessor, opts ...Option) (*Server, error) {
	if turns == nil {
		return nil, errors.New("turn processor is required")
	}

	s := &Server{
		router:       chi.NewRouter(),
		turns:        turns,
		gatherer:     prometheus.DefaultGatherer,
		newSessionID: uuid.NewString,
		turnTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.health)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.postTurn)
		r.Get("/sessions/{sessionID}", s.getSession)
		r.Get("/ws", s.serveWS)
	})

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs until ctx is cancelled, then drains in-flight turns.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = s.newSessionID()
	}

	res, err := s.runTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.turns.GetState(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) runTurn(ctx context.Context, sessionID, text string) (orchestrator.TurnResult, error) {
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}
	return s.turns.ProcessTurn(ctx, sessionID, text)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, statex.ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response failed")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
