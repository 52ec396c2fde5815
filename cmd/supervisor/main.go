// Command supervisor is the daemon entrypoint: it loads a YAML config,
// starts the monitor loop and optional Prometheus endpoint, and serves the
// ControlSurface REPL on stdin until a shutdown signal or "quit".
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kestrux/supervisor/internal/config"
	"github.com/kestrux/supervisor/internal/control"
	"github.com/kestrux/supervisor/internal/history"
	"github.com/kestrux/supervisor/internal/history/factory"
	"github.com/kestrux/supervisor/internal/logger"
	"github.com/kestrux/supervisor/internal/metrics"
	"github.com/kestrux/supervisor/internal/monitor"
	"github.com/kestrux/supervisor/internal/supervisor"
)

func main() {
	var (
		configPath    string
		logFile       string
		logDebug      bool
		logColor      bool
		metricsListen string
	)

	root := &cobra.Command{
		Use:   "supervisor",
		Short: "Process supervisor: starts, monitors, and restarts managed programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logger.Config{
				File:  logFile,
				Debug: logDebug,
				Color: logColor,
			}, metricsListen)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (required)")
	root.Flags().StringVar(&logFile, "log-file", "", "optional path for the supervisor's own rotated log file")
	root.Flags().BoolVar(&logDebug, "debug", false, "enable debug-level logging")
	root.Flags().BoolVar(&logColor, "color", true, "colorize stderr logging when no log file is set")
	root.Flags().StringVar(&metricsListen, "metrics-listen", "", "address to serve Prometheus /metrics (e.g. :9090)")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, logCfg logger.Config, metricsListen string) error {
	log := logger.New(logCfg)

	set, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sinks, err := buildSinks(set.HistoryDSN)
	if err != nil {
		return fmt.Errorf("configure history sink: %w", err)
	}

	if addr := firstNonEmpty(metricsListen, set.MetricsListen); addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Error("failed to register metrics", slog.Any("error", err))
		} else {
			go serveMetrics(addr, log)
		}
	}

	sup := supervisor.New(configPath, log, sinks)
	if err := sup.Reload(context.Background()); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := monitor.New(sup, log)
	go loop.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				log.Info("received SIGHUP, reloading config")
				if err := sup.Reload(context.Background()); err != nil {
					log.Error("reload failed", slog.Any("error", err))
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("received shutdown signal", slog.String("signal", sig.String()))
				cancel()
				sup.Shutdown(context.Background())
				os.Exit(0)
			}
		}
	}()

	surface := control.New(sup)
	surface.Run(ctx, os.Stdin, os.Stdout)

	cancel()
	sup.Shutdown(context.Background())
	return nil
}

func buildSinks(dsn string) ([]history.Sink, error) {
	if dsn == "" {
		return nil, nil
	}
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	return []history.Sink{sink}, nil
}

func serveMetrics(addr string, log *slog.Logger) {
	log.Info("serving metrics", slog.String("addr", addr))
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", slog.Any("error", err))
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
