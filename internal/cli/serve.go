package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.enableEmbeddings(ctx); err != nil {
		a.log.Warn("embeddings disabled", zap.Error(err))
	}

	// Embed any entities missing vectors
	if a.engine.Embedder != nil {
		go func() {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			n, err := a.engine.EmbedMissing(ctx, a.cfg.Owner)
			if err != nil {
				a.log.Warn("embed missing", zap.Error(err))
			} else if n > 0 {
				a.log.Info("embedded missing entities", zap.Int("count", n))
			}
		}()
	}

	if a.cfg.Maintenance.Enabled {
		a.engine.StartMaintenanceTimer()
	}

	srv := server.New(a.db, a.engine, server.Options{
		Owner:   a.cfg.Owner,
		Version: VersionString(),
		Log:     a.log.Named("http"),
		Metrics: a.metrics,
	})
	addr := a.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("jacq serving",
			zap.String("addr", addr),
			zap.String("db", a.db.Path),
			zap.String("owner", a.cfg.Owner))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
