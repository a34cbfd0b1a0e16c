package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cms-tsg-fog/RateMon-sub001/fitter/internal/batch"
	"github.com/cms-tsg-fog/RateMon-sub001/fitter/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/fitter/internal/history"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/curvefit"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		slog.Error("fitter failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fitter",
		Short:         "Fit reference rate-vs-pileup models from historical data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.AddCommand(fitCmd(), mergeCmd(), showCmd())
	return root
}

func fitCmd() *cobra.Command {
	var (
		configPath string
		output     string
		samples    string
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit every trigger in the configured history and write the fit store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Output = output
			}
			if samples != "" {
				cfg.History.Type = config.SourceFile
				cfg.History.Path = samples
			}
			setupLogging(cfg.LogLevel)
			return fit(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "fitter.yaml", "path to config file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "override the output path")
	cmd.Flags().StringVar(&samples, "samples", "", "fit from this YAML sample file instead of the configured history")
	return cmd
}

func fit(ctx context.Context, cfg *config.Config, out io.Writer) error {
	opts, err := cfg.Fit.Options()
	if err != nil {
		return err
	}
	eng, err := curvefit.New(opts)
	if err != nil {
		return err
	}

	var loader history.Loader
	switch cfg.History.Type {
	case config.SourceInflux:
		loader = history.NewInflux(cfg.History.Influx)
	default:
		loader = history.File{Path: cfg.History.Path}
	}
	series, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	series = history.Filter(series, cfg.Triggers)
	slog.Info("history loaded", "triggers", len(series), "source", cfg.History.Type)

	store := fitstore.New()
	sum, err := batch.Run(ctx, eng, series, store, batch.Options{SkipSentinels: cfg.MergeInto != ""})
	if err != nil {
		return err
	}

	if cfg.MergeInto != "" {
		base, err := fitstore.Load(cfg.MergeInto)
		if err != nil {
			return err
		}
		store = fitstore.Merge(base, store)
	}
	if err := store.Save(cfg.Output); err != nil {
		return err
	}

	for _, r := range sum.Reports {
		for _, w := range r.Warnings {
			fmt.Fprintf(out, "warning: %s/%s: %s\n", r.Trigger, r.Group, w)
		}
		if r.Sentinel {
			fmt.Fprintf(out, "warning: %s/%s: no usable fit (%d points)\n", r.Trigger, r.Group, r.Points)
		}
	}
	fmt.Fprintf(out, "wrote %s: %d fitted, %d without fit\n", cfg.Output, sum.Fitted, sum.Sentinels)
	return nil
}

func mergeCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "merge <base> <update>",
		Short: "Merge two fit stores; update wins per trigger group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := fitstore.Load(args[0])
			if err != nil {
				return err
			}
			b, err := fitstore.Load(args[1])
			if err != nil {
				return err
			}
			merged := fitstore.Merge(a, b)
			if err := merged.Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d trigger(s)\n", output, merged.Count())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "path of the merged store")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func showCmd() *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "show <store>",
		Short: "Print the models held by a fit store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := fitstore.Load(args[0])
			if err != nil {
				return err
			}
			return show(cmd.OutOrStdout(), store, trigger)
		},
	}
	cmd.Flags().StringVarP(&trigger, "trigger", "t", "", "only show this trigger")
	return cmd
}

func setupLogging(level string) {
	lv := new(slog.LevelVar)
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv.Set(slog.LevelInfo)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}
