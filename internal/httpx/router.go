package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clicklab/analytics/internal/identity"
	"github.com/clicklab/analytics/internal/ingest"
	"github.com/clicklab/analytics/internal/stats"
	"github.com/clicklab/analytics/internal/utils"
)

// Pinger is the datastore liveness probe used by /api/health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles the handlers' collaborators.
type Server struct {
	dispatcher *ingest.Dispatcher
	resolver   *identity.Resolver
	stats      *stats.Service
	pinger     Pinger
	validate   *validator.Validate
	log        *slog.Logger
}

func NewServer(dispatcher *ingest.Dispatcher, resolver *identity.Resolver, statsSvc *stats.Service, pinger Pinger, log *slog.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		resolver:   resolver,
		stats:      statsSvc,
		pinger:     pinger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
	}
}

func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(s.log))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/events", s.handleCollectEvents)
		r.Post("/identify", s.handleIdentify)
		r.Get("/stats", s.handleStats)
		r.Get("/data-quality", s.handleDataQuality)
	})

	return mux
}
