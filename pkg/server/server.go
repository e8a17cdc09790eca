// Package server exposes the advisory gateway over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agroguard/agroguard/pkg/models"
	"github.com/agroguard/agroguard/pkg/ratelimit"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 64 << 10

// Advisor produces decision results. *gateway.Gateway implements it.
type Advisor interface {
	Handle(ctx context.Context, req models.Request) (models.Result, models.Decision)
	Drain(ctx context.Context) error
}

// CacheAdmin inspects and clears the decision cache.
type CacheAdmin interface {
	Stats() models.CacheStats
	Clear()
}

// Paths of the advisory endpoints.
var Paths = map[models.UseCase]string{
	models.UseCaseSpoilage: "/spoilage/predict",
	models.UseCasePrice:    "/price/predict",
	models.UseCaseCropPlan: "/agent/plan",
	models.UseCaseChat:     "/chatbot",
}

// Server is the AgroGuard HTTP server.
type Server struct {
	listen  string
	advisor Advisor
	cache   CacheAdmin
	limiter ratelimit.Limiter
	logger  *zap.Logger
	router  *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter enables per-client rate limiting of the advisory endpoints.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server listening on addr.
func New(addr string, a Advisor, c CacheAdmin, opts ...Option) *Server {
	s := &Server{
		listen:  addr,
		advisor: a,
		cache:   c,
		logger:  zap.NewNop(),
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := s.router
	r.Use(s.corsMiddleware, s.metricsMiddleware, s.requestIDMiddleware, s.panicRecoveryMiddleware, s.loggingMiddleware)

	r.HandleFunc("/", s.handleBanner).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	for _, uc := range models.UseCases {
		r.Handle(Paths[uc], s.rateLimitMiddleware(s.handleAdvice(uc))).Methods(http.MethodPost)
	}
	if c != nil {
		r.HandleFunc("/admin/cache", s.handleCacheStats).Methods(http.MethodGet)
		r.HandleFunc("/admin/cache", s.handleCacheClear).Methods(http.MethodDelete)
	}
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down when ctx is done,
// waiting for detached upstream flights to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("agroguard listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		if derr := s.advisor.Drain(shutCtx); derr != nil {
			s.logger.Warn("upstream flights still running at shutdown", zap.Error(derr))
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type decodeFunc func(io.Reader) (models.Request, error)

func decode[T models.Request](body io.Reader) (models.Request, error) {
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

var decoders = map[models.UseCase]decodeFunc{
	models.UseCaseSpoilage: decode[models.SpoilageRequest],
	models.UseCasePrice:    decode[models.PriceRequest],
	models.UseCaseCropPlan: decode[models.CropPlanRequest],
	models.UseCaseChat:     decode[models.ChatRequest],
}

// handleAdvice validates the body and answers with the gateway result.
// Provider failures never surface here: the gateway falls back instead.
func (s *Server) handleAdvice(uc models.UseCase) http.Handler {
	dec := decoders[uc]
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := dec(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req = req.Normalize()
		if err := req.Validate(); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		result, d := s.advisor.Handle(r.Context(), req)

		cacheStatus := "miss"
		if d.Source == models.SourceCache {
			cacheStatus = "hit"
		}
		w.Header().Set("X-Agroguard-Cache", cacheStatus)
		writeJSON(w, http.StatusOK, result)
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend Running Successfully!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	cleared := s.cache.Stats().Entries
	s.cache.Clear()
	s.logger.Info("cache cleared", zap.Int64("entries", cleared))
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": cleared})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		data, _ = json.Marshal(errorBody{Error: errorDetail{Message: "could not encode response", Type: "agroguard_error", Code: code}})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Message: message, Type: "agroguard_error", Code: code}})
}
