package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server until an interrupt or terminate signal arrives,
// then shuts everything down in dependency order.
func (s *Server) Start() {
	addr := s.Cfg.GetAppAddr()
	go func() {
		if err := s.E.Start(addr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()
	slog.Info("Server started", "addr", addr)

	// Wait for interrupt signal to gracefully shut down the server with a timeout.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := s.broker.Close(); err != nil {
		slog.Error("Broker shutdown failed", "error", err)
	}
	s.messages.Close()
	if err := s.cache.Close(); err != nil {
		slog.Error("Cache shutdown failed", "error", err)
	}
	if err := s.DB.Close(ctx); err != nil {
		slog.Error("Database shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}
