package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-pos/api/controllers"
	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/internal/salesync"
	"github.com/angelmondragon/packfinderz-pos/internal/submission"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

// Deps are the services behind the terminal API.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Submission  *submission.Service
	Scheduler   *salesync.Scheduler
	Queue       *queue.Queue
	Gatherer    prometheus.Gatherer
	ReadyChecks []controllers.ReadyCheck
}

// NewRouter mounts the terminal-local API used by the register front end.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.ReadyChecks...))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cart/quote", controllers.CartQuote(deps.Submission, logg))
		r.Post("/sales", controllers.SaleFinalize(deps.Submission, logg))

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", controllers.SyncStatus(deps.Scheduler, logg))
			r.Post("/trigger", controllers.SyncTrigger(deps.Scheduler))
			r.Get("/attention", controllers.SyncAttentionList(deps.Queue, logg))
			r.Post("/attention/{clientTempId}/retry", controllers.SyncAttentionRetry(deps.Queue, deps.Scheduler, logg))
		})
	})

	return r
}
