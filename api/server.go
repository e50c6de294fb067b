package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/app"
	models "longentry/database/models_pkg"
	"longentry/market"
	"longentry/metrics"
	"longentry/ranking"
)

// ConfigQuery serves the read side.
type ConfigQuery interface {
	EAConfig(ctx context.Context, symbol string) (app.EAConfig, error)
	Analysis(ctx context.Context, week time.Time, pool string) (time.Time, []models.WeeklyAnalysis, error)
}

// OverrideSetter stores operator overrides.
type OverrideSetter interface {
	Set(ctx context.Context, symbol string, o ranking.Override, expectedVersion *int64) (*models.WeeklyAnalysis, error)
}

// PoolController reads and changes pool caps.
type PoolController interface {
	Pool(ctx context.Context, name string) (ranking.Pool, error)
	Rerank(ctx context.Context, name string, maxActive int, minScore *float64) (*app.RerankResult, error)
}

// ResultStore keeps realized weekly results.
type ResultStore interface {
	Save(ctx context.Context, res *models.WeeklyResult) error
	ListWeek(ctx context.Context, weekStart time.Time) ([]models.WeeklyResult, error)
}

// CandleWriter stores uploaded candles.
type CandleWriter interface {
	UpsertCandles(ctx context.Context, symbol, timeframe string, bars []market.Candle) (int64, error)
}

// Analytics serves score history and on-demand backtests.
type Analytics interface {
	History(ctx context.Context, symbol string, weeks int) ([]models.WeeklyAnalysis, error)
	RecentHistory(ctx context.Context, weeks int) ([]models.WeeklyAnalysis, error)
	Heatmap(ctx context.Context, symbol string) (*app.Heatmap, error)
	Trades(ctx context.Context, symbol string, p market.ParameterPoint) (*app.TradeReport, error)
}

// Deps are the services behind the routes. Metrics, Health, Events and
// Analytics may be nil.
type Deps struct {
	Query     ConfigQuery
	Overrides OverrideSetter
	Pools     PoolController
	Results   ResultStore
	Candles   CandleWriter
	Analytics Analytics
	Metrics   *metrics.Metrics
	Health    func(ctx context.Context) error

	// Events streams activation changes; nil disables the route.
	Events http.Handler

	// APIKeyHash is the hex SHA-256 of the key mutating routes require.
	APIKeyHash string
}

// Server handles HTTP API requests
type Server struct {
	deps       Deps
	keyHash    []byte
	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	if deps.APIKeyHash != "" {
		if b, err := hex.DecodeString(deps.APIKeyHash); err == nil {
			s.keyHash = b
		}
	}
	return s
}

// Handler builds the routed handler with middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	// Trading client routes
	mux.HandleFunc("GET /api/config/{symbol}", s.handleGetEAConfig)
	mux.Handle("POST /api/candles/{symbol}", s.requireAPIKey(http.HandlerFunc(s.handleUploadCandles)))
	mux.Handle("POST /api/results", s.requireAPIKey(http.HandlerFunc(s.handleSaveResult)))

	// Operator routes
	mux.Handle("POST /api/override/{symbol}", s.requireAPIKey(http.HandlerFunc(s.handleSetOverride)))
	mux.HandleFunc("GET /api/pools/{pool}/max-active", s.handleGetMaxActive)
	mux.Handle("PUT /api/pools/{pool}/max-active", s.requireAPIKey(http.HandlerFunc(s.handleSetMaxActive)))
	mux.HandleFunc("GET /api/analysis", s.handleGetAnalysis)
	mux.HandleFunc("GET /api/results", s.handleGetResults)
	if s.deps.Events != nil {
		mux.Handle("GET /api/events", s.deps.Events)
	}
	if s.deps.Analytics != nil {
		mux.HandleFunc("GET /api/history", s.handleGetRecentHistory)
		mux.HandleFunc("GET /api/history/{symbol}", s.handleGetSymbolHistory)
		mux.HandleFunc("GET /api/backtest/{symbol}/heatmap", s.handleGetHeatmap)
		mux.HandleFunc("GET /api/backtest/{symbol}/trades", s.handleGetTrades)
	}

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port and blocks until it
// stops. A clean Shutdown returns nil.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", s.httpServer.Addr).Msg("🚀 API Server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.deps.Metrics.HTTPRequest(r.Method, strconv.Itoa(rec.status))
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// requireAPIKey rejects requests whose X-API-Key does not hash to the
// configured digest.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.keyHash) == 0 {
			respondWithError(w, http.StatusServiceUnavailable, "API key not configured", nil)
			return
		}
		key := r.Header.Get("X-API-Key")
		sum := sha256.Sum256([]byte(key))
		if key == "" || subtle.ConstantTimeCompare(sum[:], s.keyHash) != 1 {
			respondWithError(w, http.StatusUnauthorized, "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Handlers are distributed across multiple files:
// - handlers_config.go: health check and EA configuration
// - handlers_activation.go: overrides and pool caps
// - handlers_analysis.go: weekly analysis, realized results, history and backtests
// - handlers_market.go: candle upload
// GET /api/events is served by the realtime broker.
