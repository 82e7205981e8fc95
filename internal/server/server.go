// Package server assembles the HTTP router and its middleware chain.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/modelgate/modelgate/internal/auth"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New builds the router with the standard middleware chain. No request
// timeout middleware is installed: completions stream for minutes and are
// bounded by the upstream call timeout instead.
func New(port int, logger *slog.Logger, authenticator *auth.Authenticator) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	if authenticator != nil {
		r.Use(AuthMiddleware(authenticator))
	}

	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "modelgate")
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}
