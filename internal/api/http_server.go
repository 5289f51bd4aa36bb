package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/config"
	"github.com/heinthant2k4/sports-arena-booking/internal/domain"
	"github.com/heinthant2k4/sports-arena-booking/internal/metrics"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// Dependencies are the services the HTTP API delegates to.
type Dependencies struct {
	Reservations domain.ReservationService
	Lifecycle    domain.LifecycleService
	Facilities   domain.FacilityRegistry
	// Now defaults to time.Now.
	Now func() time.Time
	// Ping backs /readyz when set.
	Ping func(ctx context.Context) error
	// RequestTimeout bounds each request context, including lock waits. Zero disables it.
	RequestTimeout time.Duration
}

// HTTPServer exposes the reservation engine over JSON/HTTP.
type HTTPServer struct {
	cfg      *config.APIConfig
	deps     Dependencies
	router   *httprouter.Router
	server   *http.Server
	validate *requestValidator
	limiter  *rateLimiter
	log      *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	httpLogger := logger.With().Str("component", "http").Logger()

	srv := &HTTPServer{
		cfg:      cfg,
		deps:     deps,
		router:   httprouter.New(),
		validate: newRequestValidator(),
		limiter:  newRateLimiter(cfg.RateLimit),
		log:      &httpLogger,
	}
	srv.routes()

	handler := requestIDMiddleware(
		loggingMiddleware(srv.log,
			rateLimitMiddleware(srv.limiter,
				timeoutMiddleware(deps.RequestTimeout, srv.router))))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() {
	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	s.router.PanicHandler = s.recoverPanic

	s.handle(http.MethodGet, "/healthz", s.handleHealthz)
	s.handle(http.MethodGet, "/readyz", s.handleReadyz)

	s.handle(http.MethodGet, "/api/v1/facilities", s.handleListFacilities)
	s.handle(http.MethodGet, "/api/v1/facilities/:id", s.handleGetFacility)
	s.handle(http.MethodGet, "/api/v1/facilities/:id/reservations", s.handleListByFacility)
	s.handle(http.MethodGet, "/api/v1/availability", s.handleAvailability)

	s.handle(http.MethodPost, "/api/v1/reservations", s.handleCreateReservation)
	s.handle(http.MethodGet, "/api/v1/reservations", s.handleListReservations)
	s.handle(http.MethodGet, "/api/v1/reservations/:id", s.handleGetReservation)
	s.handle(http.MethodPut, "/api/v1/reservations/:id", s.handleUpdateReservation)
	s.handle(http.MethodPost, "/api/v1/reservations/:id/confirm", s.handleConfirm)
	s.handle(http.MethodPost, "/api/v1/reservations/:id/cancel", s.handleCancel)
	s.handle(http.MethodPost, "/api/v1/reservations/:id/complete", s.handleComplete)

	s.handle(http.MethodGet, "/api/v1/owners/:owner_id/reservations", s.handleListByOwner)
	s.handle(http.MethodGet, "/api/v1/owners/:owner_id/reservations/upcoming", s.handleListUpcoming)
	s.handle(http.MethodGet, "/api/v1/owners/:owner_id/reservations/past", s.handleListPast)
	s.handle(http.MethodGet, "/api/v1/owners/:owner_id/reservations/cancellable", s.handleListCancellable)

	s.handle(http.MethodGet, "/api/v1/exports/reservations", s.handleExport)
}

// handle registers h and records request metrics under the route pattern,
// so ids in the path do not blow up label cardinality.
func (s *HTTPServer) handle(method, path string, h httprouter.Handle) {
	s.router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, ps)
		metrics.ObserveHTTP(method+" "+path, rec.status, time.Since(start))
	})
}

func (s *HTTPServer) recoverPanic(w http.ResponseWriter, r *http.Request, rcv any) {
	s.log.Error().
		Str("request_id", RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Interface("panic", rcv).
		Msg("http handler panic")
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

// Handler returns the full middleware chain. Used by tests and embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
