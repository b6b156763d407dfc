package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"roundledger/gateway/middleware"
)

// Rate limit keys understood by the router.
const (
	RateLimitRead  = "read"
	RateLimitWrite = "write"
)

type Config struct {
	Ledger        Ledger
	HealthHandler http.Handler
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	// AdminScope, when set, is required on every /v1/admin route on top of
	// the owner check the ledger performs.
	AdminScope string
	// Tracing wraps the router in an otelhttp handler.
	Tracing     bool
	ServiceName string
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("routes: ledger is required")
	}
	rr := &roundsRoutes{ledger: cfg.Ledger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	r.Handle("/healthz", health)

	group := func(sr chi.Router, name, limitKey string, scopes ...string) {
		if cfg.Authenticator != nil {
			sr.Use(cfg.Authenticator.Middleware(scopes...))
		}
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware(limitKey))
		}
		if obs != nil {
			sr.Use(obs.Middleware(name))
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(sr chi.Router) {
			group(sr, "reads", RateLimitRead)
			rr.mountReads(sr)
		})
		v1.Group(func(sr chi.Router) {
			group(sr, "writes", RateLimitWrite)
			rr.mountWrites(sr)
		})
		v1.Route("/admin", func(sr chi.Router) {
			var scopes []string
			if cfg.AdminScope != "" {
				scopes = append(scopes, cfg.AdminScope)
			}
			group(sr, "admin", RateLimitWrite, scopes...)
			rr.mountAdmin(sr)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	if cfg.Tracing {
		service := cfg.ServiceName
		if service == "" {
			service = "roundledger-gateway"
		}
		return otelhttp.NewHandler(r, service), nil
	}
	return r, nil
}
