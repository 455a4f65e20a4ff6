package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Server owns the fiber application and its route table.
type Server struct {
	app    *fiber.App
	addr   string
	logger zerolog.Logger
}

// NewServer builds the fiber app around the given handler.
func NewServer(handler *Handler, host string, port int, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               handler.opts.ServiceName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
	})
	registerRoutes(app, handler)

	return &Server{
		app:    app,
		addr:   fmt.Sprintf("%s:%d", host, port),
		logger: logger.With().Str("component", "http_server").Logger(),
	}
}

func registerRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Get("/status", h.Status)
	app.Get("/coherence/metrics", h.Metrics)
	app.Get("/coherence/history", h.History)
	app.Get("/ingest/run", h.IngestRun)
	app.Use(h.NotFound)
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return ctx.Err()
}
