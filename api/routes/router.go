package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/quotedesk-backend/api/controllers"
	quotecontrollers "github.com/angelmondragon/quotedesk-backend/api/controllers/quotes"
	stockcontrollers "github.com/angelmondragon/quotedesk-backend/api/controllers/stock"
	"github.com/angelmondragon/quotedesk-backend/api/middleware"
	"github.com/angelmondragon/quotedesk-backend/internal/quotes"
	"github.com/angelmondragon/quotedesk-backend/pkg/config"
	"github.com/angelmondragon/quotedesk-backend/pkg/db"
	"github.com/angelmondragon/quotedesk-backend/pkg/enums"
	"github.com/angelmondragon/quotedesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/quotedesk-backend/pkg/redis"
)

// RedisStore is what the HTTP layer needs from redis: readiness, request
// replay and the quote creation counters.
type RedisStore interface {
	pkgredis.ReplayStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	quoteService quotes.Service,
	ledger stockcontrollers.Ledger,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.API.CORSOrigins),
	)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	quoteCreatePolicy := middleware.NewRateLimitPolicy(
		"quote-create",
		cfg.API.QuoteCreateWindow,
		cfg.API.QuoteCreateIPLimit,
		cfg.API.QuoteCreateActorLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Route("/quotes", func(r chi.Router) {
			r.With(middleware.RateLimit(quoteCreatePolicy, redisStore, logg)).Post("/", quotecontrollers.Create(quoteService, logg))
			r.Get("/{quoteId}", quotecontrollers.Get(quoteService, logg))
			r.Get("/{quoteId}/history", quotecontrollers.History(quoteService, logg))
			r.Get("/{quoteId}/document", quotecontrollers.Document(quoteService, logg))
		})
		r.Post("/stock/availability", stockcontrollers.Availability(ledger, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRoleQuoter))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", quotecontrollers.List(quoteService, logg))
			r.Get("/by-number/{quoteNumber}", quotecontrollers.GetByNumber(quoteService, logg))
			r.Post("/{quoteId}/approve", quotecontrollers.Approve(quoteService, logg))
			r.Post("/{quoteId}/send", quotecontrollers.MarkSent(quoteService, logg))
			r.Post("/{quoteId}/reject", quotecontrollers.Reject(quoteService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin))
				r.Post("/{quoteId}/authorize", quotecontrollers.Authorize(quoteService, logg))
				r.Post("/{quoteId}/complete", quotecontrollers.Complete(quoteService, logg))
			})
		})

		r.Route("/products/{productId}", func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin))
			r.Post("/restock", stockcontrollers.Restock(ledger, logg))
			r.Get("/movements", stockcontrollers.Movements(ledger, logg))
		})
	})

	return r
}
