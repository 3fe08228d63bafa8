package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/thisisharsh7/seeva-ai-assistant/internal/api"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/app"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/threads"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("SEEVA_CONFIG"), "path to the configuration file")
	flag.Parse()

	a, err := app.Open(*configPath)
	if err != nil {
		// No logger yet when the configuration is broken.
		logger, _ := zap.NewProduction()
		logger.Fatal("failed to start", zap.Error(err))
	}
	logger := a.Logger
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to shut down cleanly", zap.Error(err))
		}
	}()

	handler := api.NewHandler(
		a.DB,
		a.Threads,
		threads.NewSession(),
		a.LLM,
		api.Defaults{Provider: a.Config.DefaultProvider(), Models: a.ModelDefaults()},
		logger,
	)

	mux := http.NewServeMux()
	handler.Register(mux)
	if dir := a.Config.Server.StaticDir; dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	}

	server := &http.Server{
		Addr:    a.Config.Server.Addr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("provider", string(a.Config.DefaultProvider())),
			zap.String("dbPath", a.Config.Database.Path))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", a.Config.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
