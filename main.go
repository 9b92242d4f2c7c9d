package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/linkbrief/linkbrief/internal/config"
	"github.com/linkbrief/linkbrief/internal/extractor"
	"github.com/linkbrief/linkbrief/internal/fetcher"
	"github.com/linkbrief/linkbrief/internal/history"
	"github.com/linkbrief/linkbrief/internal/llm"
	"github.com/linkbrief/linkbrief/internal/metrics"
	"github.com/linkbrief/linkbrief/internal/models"
	"github.com/linkbrief/linkbrief/internal/pipeline"
	"github.com/linkbrief/linkbrief/internal/queue"
	"github.com/linkbrief/linkbrief/internal/quota"
	"github.com/linkbrief/linkbrief/internal/server"
	"github.com/linkbrief/linkbrief/internal/telegram"
	"github.com/linkbrief/linkbrief/internal/telegraph"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linkbrief",
		Short: "Telegram bot that fetches web articles and summarizes them with LLMs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.AddCommand(newQuotaCmd())
	return root
}

func newQuotaCmd() *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage the provider quota file",
	}
	quotaCmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the quota file with the built-in model defaults",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load()
				logger := newLogger(cfg.LogLevel)
				store := quota.NewStore(quotaPath(cfg), nil, logger)
				if _, err := store.Load(); err != nil {
					return err
				}
				fmt.Println("quota file ready at", quotaPath(cfg))
				return nil
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Refresh the Groq and OpenRouter model tables from their APIs",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load()
				logger := newLogger(cfg.LogLevel)
				store := quota.NewStore(quotaPath(cfg), nil, logger)

				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				return llm.SyncModels(ctx, store, buildProviders(cfg, logger), logger)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print current per-model usage against the configured limits",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load()
				logger := newLogger(cfg.LogLevel)
				store := quota.NewStore(quotaPath(cfg), nil, logger)

				for _, provider := range []string{llm.ProviderGemini, llm.ProviderGroq, llm.ProviderOpenRouter} {
					names := store.Models(provider)
					if len(names) == 0 {
						continue
					}
					fmt.Println(provider + ":")
					for _, model := range names {
						limits, _ := store.Limits(provider, model)
						used := store.UsageLastMinute(provider, model)
						if limits.RequestsPerMinute > 0 {
							fmt.Printf("  %-40s %d/%d rpm\n", model, used, limits.RequestsPerMinute)
						} else {
							fmt.Printf("  %-40s %d calls last minute\n", model, used)
						}
					}
				}
				return nil
			},
		},
	)
	return quotaCmd
}

func runBot(ctx context.Context) error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	if cfg.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := quota.NewStore(quotaPath(cfg), nil, logger)
	limiter := quota.NewLimiter(store, logger)
	providers := buildProviders(cfg, logger)
	dispatcher := llm.NewDispatcher(providers, store, limiter, logger)

	prompts, err := llm.LoadLibrary(cfg.PromptsDir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}

	hist, err := history.Open(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer hist.Close()

	auth, err := telegram.NewAuthStore(filepath.Join(cfg.DataDir, "users.json"), logger)
	if err != nil {
		return fmt.Errorf("opening auth store: %w", err)
	}

	// Best effort: a failed sync still leaves the built-in Gemini models.
	syncCtx, cancelSync := context.WithTimeout(ctx, 30*time.Second)
	if err := llm.SyncModels(syncCtx, store, providers, logger); err != nil {
		logger.Warn("model sync failed", "error", err)
	}
	cancelSync()

	fetch := fetcher.New(fetcher.Options{
		Timeout:         cfg.FetchTimeout,
		BrowserEndpoint: cfg.BrowserEndpoint,
	}, logger)
	ext := extractor.New(logger)
	tgraph := telegraph.NewClient("linkbrief", "LinkBrief", logger)

	// The bot and the pipeline reference each other: the bot submits tasks
	// the pipeline processes, and the pipeline reports back through the
	// bot. Close over a late-bound pipeline pointer to break the cycle.
	var pipe *pipeline.Pipeline
	var q *queue.Queue
	q = queue.New(func(taskCtx context.Context, task *models.Task) {
		metrics.QueueDepth.Set(float64(q.Depth()))
		pipe.Process(taskCtx, task)
	}, cfg.TaskTimeout, logger)

	bot, err := telegram.NewBot(cfg.TelegramToken, cfg.BotPassword, telegram.Deps{
		Queue:      q,
		Auth:       auth,
		Quota:      store,
		Prompts:    prompts,
		History:    hist,
		Telegraph:  tgraph,
		OpenRouter: findOpenRouter(providers),
	}, logger)
	if err != nil {
		return err
	}

	pipe = pipeline.New(fetch, ext, dispatcher, prompts, hist, bot, bot, pipeline.Options{
		DefaultModel:    cfg.DefaultModel,
		DefaultVariant:  cfg.DefaultPrompt,
		SummaryLanguage: cfg.SummaryLanguage,
	}, logger)

	srv := server.New(cfg.ServerPort, q, store, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("ops server failed", "error", err)
		}
	}()

	q.Start(ctx)
	go bot.Run(ctx)
	logger.Info("linkbrief running", "model", cfg.DefaultModel, "prompt", cfg.DefaultPrompt)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", "error", err)
	}
	select {
	case <-q.Done():
	case <-shutdownCtx.Done():
		logger.Warn("queue worker did not stop in time")
	}
	return nil
}

func buildProviders(cfg *config.Config, logger *slog.Logger) []llm.Provider {
	providers := []llm.Provider{llm.NewGemini(cfg.GeminiAPIKey, logger)}
	if cfg.GroqAPIKey != "" {
		providers = append(providers, llm.NewGroq(cfg.GroqAPIKey, logger))
	}
	if cfg.OpenRouterAPIKey != "" {
		providers = append(providers, llm.NewOpenRouter(cfg.OpenRouterAPIKey, logger))
	}
	return providers
}

func findOpenRouter(providers []llm.Provider) *llm.OpenRouter {
	for _, p := range providers {
		if or, ok := p.(*llm.OpenRouter); ok {
			return or
		}
	}
	return nil
}

func quotaPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "quota.json")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
