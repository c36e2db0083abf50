package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studioclock/timeturner/internal/app"
	"github.com/studioclock/timeturner/internal/config"
)

// shutdownGrace bounds the teardown after Run returns.
const shutdownGrace = 15 * time.Second

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decode and sync daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, watch, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []app.Option{}
			if watch {
				opts = append(opts, app.WithConfigWatch(configPath))
			}
			application, err := app.New(ctx, cfg, opts...)
			if err != nil {
				return err
			}

			printStartupSummary(cfg)
			slog.Info("daemon ready, press Ctrl+C to shut down")

			runErr := application.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				slog.Error("run error", "err", runErr)
			}

			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := application.Shutdown(shutCtx); err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	return cmd
}

// loadConfig reads the config file. A missing file is not fatal: the
// daemon starts on defaults, with hot reload disabled.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "timeturner: config file %q not found, starting with defaults\n", path)
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       timeturner startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Source", string(cfg.Ingress.Source))
	if cfg.Ingress.Source == config.SourceAudio {
		printRow("Format", fmt.Sprintf("%s @ %d Hz", cfg.Ingress.Format, cfg.Ingress.SampleRate))
		printRow("Strategy", string(cfg.Decode.Strategy))
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Setter", string(cfg.Sync.Setter))
	printRow("Auto-sync", fmt.Sprintf("%t", cfg.Sync.AutoSync))
	if !cfg.Sync.Shift.IsZero() {
		s := cfg.Sync.Shift
		printRow("Shift", fmt.Sprintf("%+dh%+dm%+ds%+df", s.Hours, s.Minutes, s.Seconds, s.Frames))
	}
	if cfg.Server.TLS != nil {
		printRow("TLS", "enabled")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", key, value)
}
