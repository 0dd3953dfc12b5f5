package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/quakedisagg/internal/config"
	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/job"
	"github.com/rewired-gh/quakedisagg/internal/logger"
	"github.com/rewired-gh/quakedisagg/internal/orchestrator"
	"github.com/rewired-gh/quakedisagg/internal/progress"
	"github.com/rewired-gh/quakedisagg/internal/storage"
	"github.com/rewired-gh/quakedisagg/internal/telegram"
	"github.com/rewired-gh/quakedisagg/internal/tracing"
)

var inputPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a disaggregation job",
	Long: `Load a job file describing sites, sources, ground motion models and
hazard curves, disaggregate the hazard at every site and store the
resulting matrices in the configured database.`,
	Args: cobra.NoArgs,
	RunE: runJob,
}

func init() {
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "configs/job.yaml", "Path to job file")
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("Failed to flush traces: %v", err)
		}
	}()

	file, err := job.Load(inputPath)
	if err != nil {
		return err
	}
	j, err := file.Build(cfg.Calculation)
	if err != nil {
		return fmt.Errorf("failed to build job: %w", err)
	}
	logger.Info("Loaded job %s: %d sites, %d sources, %d realizations",
		inputPath, len(j.Sites), len(j.Sources), len(j.Realizations))

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	telegramClient, err := newTelegramClient(cfg.Telegram)
	if err != nil {
		return err
	}

	sink := progress.Multi{progress.LogSink{}}
	if telegramClient != nil {
		sink = append(sink, telegramClient)
	}
	orch := orchestrator.New(cfg.Orchestrator.Distribute, cfg.Orchestrator.Concurrency, sink)

	jobName := filepath.Base(inputPath)
	start := time.Now()
	sum, runErr := disagg.NewCalculator(j, orch, store).Run(ctx)
	elapsed := time.Since(start)

	if runErr != nil {
		logger.Error("Disaggregation failed after %v: %v", elapsed.Round(time.Millisecond), runErr)
		if telegramClient != nil {
			if err := telegramClient.SendFailure(jobName, runErr); err != nil {
				logger.Warn("Failed to send failure notification to Telegram: %v", err)
			}
		}
		return runErr
	}

	logger.Info("Disaggregation finished in %v: %d sites (%d skipped), %d matrices saved",
		elapsed.Round(time.Millisecond), sum.Sites, sum.SkippedSites, sum.Matrices)
	if telegramClient != nil {
		if err := telegramClient.SendSummary(jobName, sum, elapsed); err != nil {
			logger.Warn("Failed to send summary notification to Telegram: %v", err)
		}
	}

	for _, id := range sum.ArtifactIDs {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

// newTelegramClient returns nil when notifications are disabled
func newTelegramClient(cfg config.TelegramConfig) (*telegram.Client, error) {
	if !cfg.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil, nil
	}
	c, err := telegram.NewClient(cfg.BotToken, cfg.ChatID, cfg.MaxRetries, cfg.RetryDelayBase, cfg.ProgressStep)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Info("Telegram client initialized successfully")
	return c, nil
}
