package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/baseline"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/api"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/metrics"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/monitor"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/notify"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/source"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/thresholds"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shiftmon",
		Short:         "Online trigger rate monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the config and build the alert tree without starting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			tree, err := buildTree(cfg, placeholderActions(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d action(s)\n", len(cfg.Actions))
			if tree != nil {
				alert.Walk(tree, func(a alert.Alert, depth int) {
					fmt.Fprintf(cmd.OutOrStdout(), "%*s%s [%s]\n", depth*2, "", a.Name(), a.Level())
				})
			}
			return nil
		},
	})
	return root
}

func run(parent context.Context, configPath string) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("shiftmon starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	setLevel(level, cfg.LogLevel)
	slog.Info("config loaded",
		"endpoint", cfg.Source.Endpoint,
		"mode", cfg.Monitor.Mode,
		"poll_interval", cfg.Monitor.PollInterval,
		"actions", len(cfg.Actions),
		"api_port", cfg.API.Port,
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fits := loadFits(cfg.Monitor.FitStore)
	predictor := baseline.New(fits, baseline.Config{
		KSigma:    cfg.Monitor.KSigma,
		ModelType: types.ModelType(cfg.Monitor.ModelType),
	})

	src, err := source.New(cfg.Source)
	if err != nil {
		slog.Error("failed to build source", "err", err)
		return err
	}

	overrides := thresholds.NewStore()
	if cfg.Thresholds.Enabled() {
		go func() {
			if err := overrides.Run(ctx, cfg.Thresholds); err != nil {
				slog.Error("threshold overrides stopped", "err", err)
			}
		}()
	}

	actions, err := notify.Build(ctx, cfg.Actions)
	if err != nil {
		slog.Error("failed to build actions", "err", err)
		return err
	}
	defer actions.Close() //nolint:errcheck

	tree, err := buildTree(cfg, actions.Actions)
	if err != nil {
		slog.Error("failed to build alert tree", "err", err)
		return err
	}
	if tree == nil {
		slog.Warn("no alert tree configured; escalations are logged only")
	}

	var summary []alert.Action
	for _, name := range cfg.SummaryActions {
		summary = append(summary, actions.Actions[name])
	}

	m := metrics.New()
	sess, err := monitor.New(monitor.Options{
		Config:         cfg.Monitor,
		Source:         src,
		Predictor:      predictor,
		Thresholds:     overrides,
		Alerts:         tree,
		SummaryActions: summary,
		Metrics:        m,
	})
	if err != nil {
		slog.Error("failed to build monitor", "err", err)
		return err
	}

	// Hot reload covers monitor settings and the log level. Source, actions
	// and the alert tree are bound at startup.
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			setLevel(level, updated.LogLevel)
			sess.Reconfigure(updated.Monitor)
			slog.Info("config hot-reloaded", "mode", updated.Monitor.Mode)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.API.Port > 0 {
		handler := api.New(sess, fits, 3*cfg.Monitor.PollInterval)
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.API.Port),
			Handler:           api.Routes(cfg.API, handler, m.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "port", cfg.API.Port, "auth_mode", cfg.API.Auth.Mode)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	err = sess.Run(ctx)

	slog.Info("shiftmon shutting down")
	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	}
	return err
}

// loadFits reads the fit artifact. A missing or broken artifact leaves the
// monitor on category ceilings rather than refusing to start.
func loadFits(path string) *fitstore.Store {
	if path == "" {
		slog.Warn("no fit_store configured; all triggers use category ceilings")
		return fitstore.New()
	}
	fits, err := fitstore.Load(path)
	if err != nil {
		slog.Warn("could not load fit store; all triggers use category ceilings", "path", path, "err", err)
		return fitstore.New()
	}
	slog.Info("fit store loaded", "path", path, "triggers", fits.Count())
	return fits
}

func buildTree(cfg *config.Config, actions map[string]alert.Action) (alert.Alert, error) {
	if cfg.Alerts.Type == "" {
		return nil, nil
	}
	return alert.Build(cfg.Alerts, actions, monitor.Registry())
}

// placeholderActions lets validate build the tree without dialing NATS or
// Postgres.
func placeholderActions(cfg *config.Config) map[string]alert.Action {
	out := make(map[string]alert.Action, len(cfg.Actions))
	for _, a := range cfg.Actions {
		out[a.Name] = alert.NewAction(a.Name, func(context.Context, alert.Alert) error { return nil })
	}
	return out
}

func setLevel(lv *slog.LevelVar, name string) {
	if err := lv.UnmarshalText([]byte(name)); err != nil {
		slog.Warn("unknown log level, keeping current", "level", name)
	}
}
