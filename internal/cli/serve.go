package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"assistchat/internal/api"
	"assistchat/internal/store"
	"assistchat/internal/websession"
	"assistchat/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat web server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newConversationService(ctx, cfg)
	if err != nil {
		return err
	}

	sessions, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	workerCfg := worker.Config{
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: cfg.BasicConfig.WorkerIdleDuration(),
		Logger:      logger,
	}
	if bus, ok := sessions.(store.ResetBus); ok {
		workerCfg.ResetBus = bus
		workerCfg.Shared = true
	}
	workers := worker.NewManager(svc, sessions, workerCfg)
	defer workers.Stop()
	if err := workers.ListenResets(ctx); err != nil {
		return fmt.Errorf("listen for session resets: %w", err)
	}

	if cfg.BasicConfig.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(workers, svc, websession.NewService(cfg.BasicConfig.SessionTTLDuration()), api.Options{
		MessagesPerMinute: cfg.BasicConfig.MessagesPerMinute,
		TurnTimeout:       turnTimeout(cfg),
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		def := svc.Agent()
		logger.Info("server listening", "addr", srv.Addr, "agent_id", def.ID, "model", def.Model, "session_backend", cfg.BasicConfig.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
