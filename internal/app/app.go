// Package app wires configuration, logging, storage and the chat service
// together for the binaries.
package app

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/config"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/db"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/llm"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/logging"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/provider"
	"github.com/thisisharsh7/seeva-ai-assistant/internal/threads"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *db.Database
	Threads *threads.Manager
	LLM     *llm.Service
}

// Open loads a .env file if present, then the configuration at configPath
// (or the default search path when empty), and opens the store.
func Open(configPath string) (*App, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
		return nil, multierr.Append(fmt.Errorf("failed to open database: %w", err), ignoreSyncError(logger.Sync()))
	}

	service := llm.New(database, cfg.ProviderFactory(logger),
		llm.WithSystemPrompt(cfg.Chat.SystemPrompt),
		llm.WithTemperature(cfg.Chat.Temperature),
		llm.WithMaxTokens(cfg.Chat.MaxTokens),
		llm.WithLogger(logger),
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		DB:      database,
		Threads: threads.NewManager(database, logger),
		LLM:     service,
	}, nil
}

// ModelDefaults returns the configured default model of every vendor that
// has one.
func (a *App) ModelDefaults() map[provider.Name]string {
	defaults := make(map[provider.Name]string)
	for _, name := range provider.Names() {
		if model := a.Config.DefaultModel(name); model != "" {
			defaults[name] = model
		}
	}
	return defaults
}

// Close closes the store and flushes the logger.
func (a *App) Close() error {
	return multierr.Combine(
		a.DB.Close(),
		ignoreSyncError(a.Logger.Sync()),
	)
}

// Sync on stdout or stderr fails with EINVAL or ENOTTY on most terminals.
func ignoreSyncError(err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
