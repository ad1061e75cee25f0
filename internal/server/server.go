// Package server exposes the RSVP handlers over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/observability/metrics"
)

type Handlers struct {
	Guests  *handler.GuestHandler
	RSVP    *handler.RSVPHandler
	CheckIn *handler.CheckInHandler
	Stats   *handler.StatsHandler
	Tokens  *handler.TokenHandler
}

type Options struct {
	CORSOrigins        []string
	RateLimitPerMinute int
}

type Server struct {
	h       Handlers
	metrics *metrics.Metrics
}

// NewRouter builds the HTTP handler with middleware and every API route.
func NewRouter(h Handlers, opts Options, log zerolog.Logger, m *metrics.Metrics) http.Handler {
	s := &Server{h: h, metrics: m}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(log))
	r.Use(withRequestID)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimw.Recoverer)
	r.Use(s.withMetrics)

	if opts.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
	}
	r.Use(cors.Handler(corsOptions(opts.CORSOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/guests", func(r chi.Router) {
			r.Post("/", s.registerGuest)
			r.Get("/", s.roster)
			r.Get("/full", s.fullList)
			r.Get("/{code}", s.getGuest)
			r.Patch("/{code}", s.updateGuest)
			r.Delete("/{code}", s.deleteGuest)
		})
		r.Post("/confirmations", s.confirm)
		r.Post("/checkins/{code}", s.checkIn)
		r.Post("/tokens", s.registerToken)
		r.Get("/stats", s.stats)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}
}
