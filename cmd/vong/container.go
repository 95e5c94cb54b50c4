package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nathantilsley/vongform/internal/platform/config"
	"github.com/nathantilsley/vongform/internal/platform/telemetry"
	chartwriter "github.com/nathantilsley/vongform/internal/umbrella/adapters/chart_writer"
	consulkv "github.com/nathantilsley/vongform/internal/umbrella/adapters/consul_kv"
	helmcli "github.com/nathantilsley/vongform/internal/umbrella/adapters/helm_cli"
	linediff "github.com/nathantilsley/vongform/internal/umbrella/adapters/line_diff"
	memorykv "github.com/nathantilsley/vongform/internal/umbrella/adapters/memory_kv"
	natskv "github.com/nathantilsley/vongform/internal/umbrella/adapters/nats_kv"
	sqlitekv "github.com/nathantilsley/vongform/internal/umbrella/adapters/sqlite_kv"
	yamlrender "github.com/nathantilsley/vongform/internal/umbrella/adapters/yaml_render"
	"github.com/nathantilsley/vongform/internal/umbrella/app"
	"github.com/nathantilsley/vongform/internal/umbrella/domain"
	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

// Container holds all application dependencies.
type Container struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       ports.StateStorePort
	SyncService ports.SyncUseCase

	closers []func() error
}

// NewContainer builds and wires all dependencies. Helm is only looked up
// when a dependency update was requested.
func NewContainer(ctx context.Context, cfg config.Config, log *slog.Logger, tel *telemetry.Telemetry) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	store, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}
	c.Store = store

	var deps ports.DependencyUpdaterPort
	if cfg.UpdateDeps {
		helm, err := helmcli.New(log)
		if err != nil {
			_ = c.Close()
			return nil, domain.NewDependencyUpdateError(cfg.OutputDir, fmt.Errorf("creating helm adapter: %w", err))
		}
		deps = helm
	}

	c.SyncService = app.NewSyncService(
		store,
		yamlrender.New(),
		chartwriter.New(log),
		linediff.New(linediff.DefaultContext),
		deps, // nil unless --dependency-update
		log,
		tel.Meter,
		tel.Tracer,
	)
	return c, nil
}

func (c *Container) openStore(ctx context.Context) (ports.StateStorePort, error) {
	cfg := c.Config
	log := c.Logger.With("store", cfg.Store)

	switch cfg.Store {
	case config.StoreConsul:
		store, err := consulkv.New(cfg.ConsulAddr, cfg.StoreTimeout)
		if err != nil {
			return nil, domain.NewInvalidConfigError("consul-addr", fmt.Errorf("creating consul adapter: %w", err))
		}
		log.Debug("state store ready", "address", cfg.ConsulAddr)
		return store, nil

	case config.StoreNATS:
		store, err := natskv.New(ctx, cfg.NATSURL, cfg.NATSBucket, cfg.StoreTimeout, log)
		if err != nil {
			return nil, domain.NewStoreUnavailableError("connect", cfg.NATSURL, err)
		}
		c.closers = append(c.closers, store.Close)
		log.Debug("state store ready", "url", cfg.NATSURL, "bucket", cfg.NATSBucket)
		return store, nil

	case config.StoreSQLite:
		store, err := sqlitekv.New(cfg.SQLitePath, cfg.StoreTimeout)
		if err != nil {
			return nil, domain.NewStoreUnavailableError("open", cfg.SQLitePath, err)
		}
		c.closers = append(c.closers, store.Close)
		log.Debug("state store ready", "path", cfg.SQLitePath)
		return store, nil

	case config.StoreMemory:
		log.Warn("using in-memory store, state is discarded on exit")
		return memorykv.New(nil), nil
	}
	return nil, domain.NewInvalidConfigError("store", fmt.Errorf("unknown store %q", cfg.Store))
}

// Close releases store connections.
func (c *Container) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
