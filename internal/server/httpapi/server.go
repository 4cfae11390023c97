// Package httpapi exposes the medledger service as a JSON REST API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clinsafe/medledger/internal/logging"
	"github.com/gin-gonic/gin"
)

// Handlers bundles the route handlers mounted on the router.
type Handlers struct {
	Auth         *AuthHandler
	Records      *RecordHandler
	Certificates *CertificateHandler
	Admin        *AdminHandler
}

// NewRouter assembles the gin engine: recovery, request logging and origin
// capture on every route, bearer auth on everything outside the login
// window, and the admin surface behind a role gate.
func NewRouter(secretKey []byte, logger logging.Logger, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLog(logger), Origin())

	api := router.Group("/api/v1")
	authed := api.Group("", Authenticate(secretKey))

	h.Auth.RegisterRoutes(api, authed)
	h.Records.RegisterRoutes(authed)
	h.Certificates.RegisterRoutes(authed)
	h.Admin.RegisterRoutes(authed.Group("/admin", RequireAdmin()))

	return router
}

// shutdownTimeout bounds the drain of in-flight requests on stop.
const shutdownTimeout = 10 * time.Second

// HTTPServer serves the API until its context is cancelled.
type HTTPServer struct {
	srv    *http.Server
	logger logging.Logger
}

func NewHTTPServer(addr string, logger logging.Logger, secretKey string, h Handlers) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:    addr,
			Handler: NewRouter([]byte(secretKey), logger, h),
		},
		logger: logger.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "error shutting down HTTP server", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.srv.Addr)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
