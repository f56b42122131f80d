package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ineyio/flowgate"
)

// Server is the HTTP surface of the gateway.
type Server struct {
	config   flowgate.Config
	gateway  *Gateway
	router   *chi.Mux
	httpSrv  *http.Server
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewServer creates a Server.
func NewServer(cfg flowgate.Config, gw *Gateway, logger zerolog.Logger) *Server {
	s := &Server{
		config:  cfg,
		gateway: gw,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.upgrader = s.newUpgrader()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/vision", s.handleVision)
		r.Get("/providers", s.handleProviders)
	})
	r.Get("/ws/analyze", s.handleWebSocket)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address. It blocks until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: streams stay open for as long as the backend talks.
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

func requestIDFrom(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type providerHealth struct {
	State     flowgate.HealthState `json:"state"`
	LastError string               `json:"lastError,omitempty"`
}

type providersResponse struct {
	Providers []flowgate.ProviderDescriptor `json:"providers"`
	Default   *string                       `json:"default"`
	Health    map[string]providerHealth     `json:"health"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	reg := s.gateway.Registry()
	resp := providersResponse{
		Providers: reg.ListAvailable(),
		Health:    make(map[string]providerHealth),
	}
	if resp.Providers == nil {
		resp.Providers = []flowgate.ProviderDescriptor{}
	}
	if id, ok := reg.ResolveDefault(); ok {
		resp.Default = &id
	}
	for _, d := range resp.Providers {
		resp.Health[d.ID] = providerHealth{
			State:     s.gateway.Health().GetHealth(d.ID),
			LastError: s.gateway.Health().LastError(d.ID),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	target, err := s.gateway.Resolve(req.Provider)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	sink := newSSESink(w)
	sink.start()

	ctx := WithRequestID(r.Context(), requestIDFrom(r))
	if err := s.gateway.Run(ctx, target, req, sink); err != nil {
		s.logger.Debug().Err(err).Str("provider", target.ID).Msg("analyze stream ended with error")
	}
}

type visionRequest struct {
	Provider string `json:"provider,omitempty"`
	flowgate.VisionRequest
}

func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	var req visionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := flowgate.ValidateVisionRequest(req.VisionRequest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target, err := s.gateway.Resolve(req.Provider)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	res, err := target.Provider.AnalyzeVision(r.Context(), req.VisionRequest)
	if err != nil {
		if errors.Is(err, flowgate.ErrUpstream) {
			s.gateway.Health().RecordFailure(target.ID, err)
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, flowgate.InvalidInput("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, flowgate.InvalidInput("malformed request body: %v", err))
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flowgate.ErrInvalidInput), errors.Is(err, flowgate.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, flowgate.ErrUnconfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, flowgate.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, flowgate.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
