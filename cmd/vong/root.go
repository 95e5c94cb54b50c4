package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nathantilsley/vongform/internal/platform/config"
	"github.com/nathantilsley/vongform/internal/platform/logger"
	"github.com/nathantilsley/vongform/internal/platform/metrics"
	"github.com/nathantilsley/vongform/internal/platform/telemetry"
	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

const envFile = ".env"

// rawMutation is a --set or --rm argument in command-line order.
type rawMutation struct {
	remove bool
	arg    string
}

// mutationFlag appends to a slice shared by --set and --rm so mixed flags
// keep their relative order.
type mutationFlag struct {
	remove bool
	into   *[]rawMutation
}

func (f *mutationFlag) String() string { return "" }

func (f *mutationFlag) Set(v string) error {
	*f.into = append(*f.into, rawMutation{remove: f.remove, arg: v})
	return nil
}

func (f *mutationFlag) Type() string {
	if f.remove {
		return "service"
	}
	return "service=version"
}

func parseMutations(raw []rawMutation) ([]domain.Mutation, error) {
	out := make([]domain.Mutation, 0, len(raw))
	for _, r := range raw {
		var (
			m   domain.Mutation
			err error
		)
		if r.remove {
			m, err = domain.ParseRemove(r.arg)
		} else {
			m, err = domain.ParseSet(r.arg)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func newRootCommand() *cobra.Command {
	var raw []rawMutation

	cmd := &cobra.Command{
		Use:   "vong",
		Short: "Maintain a Helm umbrella chart from a service version registry",
		Long: `vong keeps a service -> version registry in a key-value store and renders it
into the requirements.yaml and values.yaml of a Helm umbrella chart.

Without --set or --rm the current persisted state is rendered.`,
		Example: `  vong --set auth-2020=1.2.3 --set sessions-2020=1.0.0 -o ./chart
  vong --rm sessions-2020 --dry-run
  vong --store sqlite --sqlite-path ./vong.db --diff`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return domain.NewInvalidConfigError("args", fmt.Errorf("unexpected arguments %q, use --set or --rm", args))
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mutations, err := parseMutations(raw)
			if err != nil {
				return err
			}
			cfg, err := config.Load(cmd.Flags(), envFile)
			if err != nil {
				return err
			}
			return run(cmd, cfg, mutations)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return domain.NewInvalidConfigError("flags", err)
	})

	flags := cmd.Flags()
	flags.Var(&mutationFlag{into: &raw}, "set", "set a service version, name=version (repeatable)")
	flags.Var(&mutationFlag{remove: true, into: &raw}, "rm", "remove a service (repeatable)")
	config.RegisterFlags(flags)
	flags.SortFlags = false

	return cmd
}

func run(cmd *cobra.Command, cfg config.Config, mutations []domain.Mutation) (err error) {
	log := logger.New(cfg.LogLevel).With("run", uuid.NewString())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Options{
		Enabled:  cfg.OTelEnabled,
		Exporter: cfg.OTelExporter,
		Writer:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		// The run context may already be cancelled; flushing needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	start := time.Now()
	var result domain.SyncResult
	defer func() {
		recordRun(log, cfg.MetricsTextfile, result, err, time.Since(start))
	}()

	container, err := NewContainer(ctx, cfg, log, tel)
	if err != nil {
		return fmt.Errorf("building container: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Warn("closing state store failed", "error", err)
		}
	}()

	result, err = container.SyncService.Execute(ctx, domain.SyncRequest{
		Mutations:    mutations,
		Prefix:       cfg.Prefix,
		ValuesPrefix: cfg.ValuesPrefix,
		OutputDir:    cfg.OutputDir,
		Repository:   domain.RepositoryConfig{URL: cfg.Repository},
		Chart:        domain.ChartMetadata{Name: cfg.ChartName, Version: cfg.ChartVersion},
		DryRun:       cfg.DryRun,
		ShowDiff:     cfg.ShowDiff,
		UpdateDeps:   cfg.UpdateDeps,
	})
	if err != nil {
		return err
	}

	if cfg.DryRun && result.ManifestDiff != "" {
		fmt.Fprintln(cmd.OutOrStdout(), result.ManifestDiff)
	}
	log.Info("sync complete",
		"services", result.Registry.Len(),
		"changed", domain.CountChanges(result.Changes),
		"persisted", result.Persisted,
		"committed", result.Committed,
		"duration", time.Since(start),
	)
	return nil
}

// recordRun writes the run summary to the textfile when one is configured.
// A failure here is logged and never changes the exit status.
func recordRun(log *slog.Logger, path string, result domain.SyncResult, err error, elapsed time.Duration) {
	if path == "" {
		return
	}

	run := metrics.Run{
		Result:   metrics.ResultSuccess,
		Services: result.Registry.Len(),
		Changed:  domain.CountChanges(result.Changes),
		Duration: elapsed,
		Finished: time.Now(),
	}
	if result.Persisted {
		run.Puts = len(result.Changeset.Puts)
		run.Deletes = len(result.Changeset.Deletes)
	}
	if err != nil {
		run.Result = metrics.ResultError
		run.Kind = domain.KindOf(err).String()
	}

	rec := metrics.New()
	rec.Observe(run)
	if werr := rec.WriteTextfile(path); werr != nil {
		log.Warn("failed to write metrics textfile", "path", path, "error", werr)
	}
}
