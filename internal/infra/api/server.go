package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"product-entitlements/internal/domain/ports/adapter"
	"product-entitlements/internal/domain/ports/repository"
	"product-entitlements/internal/usecase"
)

// Server exposes the entitlement use cases over HTTP.
type Server struct {
	activation usecase.ActivationUseCase
	access     usecase.AccessUseCase
	trials     usecase.TrialUseCase
	members    usecase.MemberUseCase
	limiter    *usecase.RateLimiter
	catalog    repository.ProductCatalog
	verifier   adapter.TokenVerifier
	timeout    time.Duration
	now        func() time.Time
	log        *zerolog.Logger
}

type Deps struct {
	Activation usecase.ActivationUseCase
	Access     usecase.AccessUseCase
	Trials     usecase.TrialUseCase
	Members    usecase.MemberUseCase
	Limiter    *usecase.RateLimiter
	Catalog    repository.ProductCatalog
	Verifier   adapter.TokenVerifier
}

func NewServer(d Deps, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		activation: d.Activation,
		access:     d.Access,
		trials:     d.Trials,
		members:    d.Members,
		limiter:    d.Limiter,
		catalog:    d.Catalog,
		verifier:   d.Verifier,
		timeout:    requestTimeout,
		now:        time.Now,
		log:        &l,
	}
}

// SetClock overrides the time source; tests use it to pin "now".
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.verifier))

		r.Post("/activation/activate", s.handleActivate)
		r.Get("/membership", s.handleMembership)
		r.Get("/purchases", s.handleMyPurchases)

		r.Get("/products", s.handleListProducts)
		r.Get("/products/access/{slug}", s.handleAccess)
		r.Get("/products/trial/{slug}", s.handleTrialStatus)
		r.Post("/products/trial/{slug}", s.handleConsumeTrial)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin())

			r.Post("/activation/generate", s.handleGenerate)
			r.Get("/activation/batches/{id}", s.handleListBatch)

			r.Get("/admin/members/{id}", s.handleGetMember)
			r.Get("/admin/members/{id}/purchases", s.handleMemberPurchases)
			r.Put("/admin/members/{id}/adjust", s.handleAdjustMember)
			r.Post("/admin/members/{id}/trials/{slug}/reset", s.handleResetTrial)

			r.Get("/admin/attempts/{action}", s.handleCheckAttempt)
			r.Post("/admin/attempts/{action}", s.handleRecordAttempt)
		})
	})
	return r
}
