// Package httpapi exposes the envelope services over HTTP under /api/v2.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// Services are the collaborators the handlers call into.
type Services struct {
	Envelopes   *services.EnvelopeService
	TwoFactor   *services.TwoFactorService
	Auth        *services.AuthService
	Documents   *services.DocumentService
	Idempotency *services.IdempotencyService

	// Resolver turns bearer values into principals. Auth is used when nil.
	Resolver services.CredentialResolver
}

type HTTPServer struct {
	address     string
	logger      logging.Logger
	envelopes   *services.EnvelopeService
	twoFactor   *services.TwoFactorService
	auth        *services.AuthService
	documents   *services.DocumentService
	idempotency *services.IdempotencyService
	resolver    services.CredentialResolver
}

func NewHTTPServer(address string, l logging.Logger, svc Services) *HTTPServer {
	resolver := svc.Resolver
	if resolver == nil {
		resolver = svc.Auth
	}
	return &HTTPServer{
		address:     address,
		logger:      l.With("module", "http_server"),
		envelopes:   svc.Envelopes,
		twoFactor:   svc.TwoFactor,
		auth:        svc.Auth,
		documents:   svc.Documents,
		idempotency: svc.Idempotency,
		resolver:    resolver,
	}
}

// Handler builds the router.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api/v2", func(api chi.Router) {
		api.Post("/presign/verify", s.verifyPresign)

		api.Group(func(authed chi.Router) {
			authed.Use(s.authenticate)
			authed.Use(s.idempotent)

			authed.Post("/presign", s.issuePresign)

			authed.Post("/envelopes", s.createEnvelope)
			authed.Route("/envelopes/{id}", func(env chi.Router) {
				env.Get("/", s.getEnvelope)
				env.Patch("/", s.updateEnvelope)
				env.Delete("/", s.deleteEnvelope)
				env.Post("/distribute", s.distributeEnvelope)
				env.Post("/cancel", s.cancelEnvelope)
				env.Put("/recipients", s.setRecipients)
				env.Put("/fields", s.setFields)
				env.Post("/items", s.createItems)
				env.Patch("/items", s.updateItems)
				env.Delete("/items/{itemId}", s.deleteItem)
				env.Post("/actions", s.recordAction)
				env.Get("/audit-logs", s.listAuditLogs)
				env.Post("/recipients/{recipientId}/two-factor", s.issueTwoFactor)
			})

			authed.Get("/two-factor/{tokenId}", s.getTwoFactor)
			authed.Post("/two-factor/{tokenId}/verify", s.verifyTwoFactor)

			authed.Post("/documents", s.registerDocument)
			authed.Post("/documents/uploads", s.createUpload)
			authed.Post("/documents/{documentId}/complete", s.completeUpload)
			authed.Get("/documents/{documentId}/download-url", s.downloadURL)
		})
	})

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
