// Package server exposes the pool engine over an HTTP JSON API.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"thurman/crypto"
	"thurman/native/originators"
	"thurman/native/pool"
	telemetry "thurman/observability/otel"
	"thurman/services/poold/journal"
	"thurman/services/poold/middleware"
	"thurman/services/poold/stream"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine     *pool.Engine
	Assets     pool.AssetTransfers
	Registries map[crypto.Address]*originators.Registry
	// Journal and Hub are optional; their routes answer 503 when absent.
	Journal *journal.Journal
	Hub     *stream.Hub
	// ExportDir enables POST /v1/events/export when set.
	ExportDir string

	Auth       middleware.AuthConfig
	RateLimits map[string]middleware.RateLimit
	CORS       middleware.CORSConfig
	Logger     *slog.Logger
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine     *pool.Engine
	assets     pool.AssetTransfers
	registries map[crypto.Address]*originators.Registry
	journal    *journal.Journal
	hub        *stream.Hub
	exportDir  string
	origins    []string
	logger     *slog.Logger
	tracer     trace.Tracer

	router http.Handler
}

const (
	budgetReads  = "reads"
	budgetWrites = "writes"
)

// New constructs the router with authentication, rate limiting and
// instrumentation in place.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:     cfg.Engine,
		assets:     cfg.Assets,
		registries: cfg.Registries,
		journal:    cfg.Journal,
		hub:        cfg.Hub,
		exportDir:  cfg.ExportDir,
		origins:    cfg.CORS.AllowedOrigins,
		logger:     logger,
		tracer:     telemetry.Tracer("thurman/poold"),
	}
	if srv.registries == nil {
		srv.registries = map[crypto.Address]*originators.Registry{}
	}
	srv.router = srv.buildRouter(cfg)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(cfg Config) http.Handler {
	auth := middleware.NewAuthenticator(cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimits, s.logger)
	obs := middleware.NewObservability("poold", s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(obs.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(auth.Middleware())

		api.Group(func(read chi.Router) {
			read.Use(limiter.Middleware(budgetReads))
			read.Get("/pools", s.listPools)
			read.Get("/pools/{id}", s.getPool)
			read.Get("/pools/{id}/accounts/{addr}", s.getAccount)
			read.Get("/pools/{id}/loans/{borrower}", s.listLoans)
			read.Get("/pools/{id}/loans/{borrower}/{loanID}", s.getLoan)
			read.Get("/operators", s.listOperators)
			read.Get("/registries/{registry}/originators", s.listOriginators)
			read.Get("/events", s.listEvents)
			read.Get("/events/stream", s.streamEvents)
		})

		api.Group(func(write chi.Router) {
			write.Use(limiter.Middleware(budgetWrites))
			write.Post("/pools", s.createPool)
			write.Put("/pools/{id}/settings", s.updateSettings)

			write.Post("/pools/{id}/deposits/request", s.requestDeposit)
			write.Post("/pools/{id}/deposits/fulfill", s.fulfillDeposit)
			write.Post("/pools/{id}/deposits/claim", s.claimDeposit)
			write.Post("/pools/{id}/deposits/cancel", s.cancelDeposit)
			write.Post("/pools/{id}/redemptions/request", s.requestRedeem)
			write.Post("/pools/{id}/redemptions/fulfill", s.fulfillRedeem)
			write.Post("/pools/{id}/redemptions/claim", s.claimRedeem)
			write.Post("/pools/{id}/redemptions/cancel", s.cancelRedeem)
			write.Post("/pools/{id}/operators", s.setOperator)
			write.Post("/pools/{id}/approvals", s.approveShares)

			write.Post("/pools/{id}/loans", s.initLoan)
			write.Post("/pools/{id}/loans/batch", s.batchInitLoan)
			write.Post("/pools/{id}/repayments", s.repayLoan)
			write.Post("/pools/{id}/repayments/batch", s.batchRepay)
			write.Post("/pools/{id}/sale-proceeds", s.transferSaleProceeds)
			write.Post("/pools/{id}/fees/withdraw", s.withdrawFees)

			write.Post("/operators", s.grantOperator)
			write.Delete("/operators/{addr}", s.revokeOperator)
			write.Post("/registries/{registry}/originators", s.registerOriginator)
			write.Delete("/registries/{registry}/originators/{addr}", s.deactivateOriginator)
			write.Post("/registries/{registry}/accruers", s.grantAccruer)
			write.Delete("/registries/{registry}/accruers/{addr}", s.revokeAccruer)
			write.Post("/events/export", s.exportEvents)
		})
	})
	return obs.Transport(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pools": s.engine.PoolCount()})
}

// traced runs fn inside a span named after the engine operation.
func (s *Server) traced(ctx context.Context, op string, poolID uint64, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "pool."+op, trace.WithAttributes(
		attribute.String("pool.op", op),
		attribute.Int64("pool.id", int64(poolID)),
	))
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
