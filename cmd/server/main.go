package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/api"
	"github.com/RichardoC/portfolio-chat/internal/config"
	"github.com/RichardoC/portfolio-chat/internal/db"
	"github.com/RichardoC/portfolio-chat/internal/limit"
	"github.com/RichardoC/portfolio-chat/internal/llm"
	"github.com/RichardoC/portfolio-chat/internal/llm/hosted"
	"github.com/RichardoC/portfolio-chat/internal/llm/local"
	"github.com/RichardoC/portfolio-chat/internal/suggest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "portfolio-chat",
		Short:        "Chat proxy for the portfolio assistant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("addr", ":8100", "listen address")
	flags.String("provider", config.ProviderHosted, "upstream provider: hosted or local")
	flags.String("db-path", "portfolio-chat.db", "sqlite database path")
	flags.String("log-level", "info", "debug, info, warn or error")
	for key, flag := range map[string]string{
		"addr":      "addr",
		"provider":  "provider",
		"db_path":   "db-path",
		"log_level": "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	defer func() { err = multierr.Append(err, database.Close()) }()

	persona, err := cfg.Persona()
	if err != nil {
		return err
	}

	// Missing credentials do not stop the server; every chat request is
	// answered as misconfigured instead.
	configErr := cfg.Validate()
	if configErr != nil {
		logger.Error("configuration incomplete, chat requests will fail", zap.Error(configErr))
	}

	provider, err := newProvider(cfg, database, logger)
	if err != nil {
		configErr = multierr.Append(configErr, err)
		logger.Error("failed to create upstream provider", zap.Error(err))
	}

	tokens, err := llm.NewTokenCounter()
	if err != nil {
		// Count falls back to a character estimate.
		logger.Warn("token encoding unavailable", zap.Error(err))
	}

	limiter := limit.NewMemory(limit.Options{
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerMinute: cfg.RequestsPerMinute,
		DailyLimit:        cfg.DailyLimit,
		Daily:             database,
	})

	svc := llm.NewService(llm.ServiceConfig{
		Provider:        provider,
		Limiter:         limiter,
		Tokens:          tokens,
		Logger:          logger,
		Persona:         persona,
		StoreID:         cfg.VectorStoreID,
		MaxPromptChars:  cfg.MaxPromptChars,
		MaxPromptTokens: cfg.MaxPromptTokens,
		Timeout:         cfg.RequestTimeout,
		ConfigErr:       configErr,
	})

	handler := api.NewHandler(svc, suggest.New(nil), database, logger).TrustForwarded(cfg.TrustForwarded)
	logger.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)
	return api.NewServer(cfg.Addr, handler, logger).ListenAndServe(ctx)
}

func newProvider(cfg *config.Config, database *db.Database, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLocal:
		// Ollama and similar endpoints ignore the token but the client wants one.
		token := cfg.OpenAIAPIKey
		if token == "" {
			token = "local"
		}
		p, err := local.New(cfg.BaseURL, token, cfg.Model, database, local.Config{
			HistoryTurns:     cfg.HistoryTurns,
			KnowledgeResults: cfg.KnowledgeResults,
			Temperature:      cfg.Temperature,
			TopP:             cfg.TopP,
		}, logger.Named("local"))
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.ProviderHosted:
		return hosted.New(hosted.Config{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}, logger.Named("hosted")), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
