package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

// SyncService implements ports.SyncUseCase: load the registry, apply the
// mutations, render, persist the changed keys, and commit the manifests.
type SyncService struct {
	store    ports.StateStorePort
	renderer ports.RendererPort
	writer   ports.WriterPort
	differ   ports.DiffPort
	deps     ports.DependencyUpdaterPort // Optional: nil unless helm is available
	logger   *slog.Logger
	tracer   trace.Tracer

	mutations metric.Int64Counter
	writes    metric.Int64Counter
	deletes   metric.Int64Counter
}

// NewSyncService creates a SyncService wired with all driven ports.
// deps may be nil; requests asking for a dependency update then fail.
func NewSyncService(
	store ports.StateStorePort,
	renderer ports.RendererPort,
	writer ports.WriterPort,
	differ ports.DiffPort,
	deps ports.DependencyUpdaterPort,
	logger *slog.Logger,
	meter metric.Meter,
	tracer trace.Tracer,
) *SyncService {
	return &SyncService{
		store:     store,
		renderer:  renderer,
		writer:    writer,
		differ:    differ,
		deps:      deps,
		logger:    logger,
		tracer:    tracer,
		mutations: counter(meter, "vong.mutations", "Mutations that changed the registry"),
		writes:    counter(meter, "vong.store.writes", "Service keys written to the state store"),
		deletes:   counter(meter, "vong.store.deletes", "Service keys deleted from the state store"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noopmetric.Int64Counter{}
	}
	return c
}

// Execute runs one invocation. Nothing is persisted or written unless every
// earlier stage succeeded.
func (s *SyncService) Execute(ctx context.Context, req domain.SyncRequest) (domain.SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "vong.sync", trace.WithAttributes(
		attribute.String("vong.prefix", req.Prefix),
		attribute.Int("vong.mutations", len(req.Mutations)),
		attribute.Bool("vong.dry_run", req.DryRun),
	))
	defer span.End()

	result, err := s.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.KindOf(err).String())
	}
	return result, err
}

func (s *SyncService) execute(ctx context.Context, req domain.SyncRequest) (domain.SyncResult, error) {
	var result domain.SyncResult

	prev, err := s.load(ctx, req.Prefix)
	if err != nil {
		return result, err
	}
	s.logger.Info("loaded registry", "prefix", req.Prefix, "services", prev.Len())

	next, changes := s.mutate(ctx, prev, req.Mutations)
	result.Changes = changes
	result.Registry = next

	pair, err := s.render(ctx, next, req)
	if err != nil {
		return result, err
	}
	result.Manifests = pair

	if req.ShowDiff || req.DryRun {
		current, err := s.writer.Read(ctx, req.OutputDir)
		if err != nil {
			return result, fmt.Errorf("reading committed manifests: %w", err)
		}
		result.ManifestDiff = s.manifestDiff(current, pair)
		if result.ManifestDiff == "" {
			s.logger.Info("manifests unchanged", "outputDir", req.OutputDir)
		} else {
			s.logger.Info("manifest diff", "outputDir", req.OutputDir, "diff", "\n"+result.ManifestDiff)
		}
	}

	result.Changeset = domain.Diff(prev, next)

	if req.DryRun {
		s.logger.Info("dry run, skipping persist and commit",
			"puts", len(result.Changeset.Puts),
			"deletes", len(result.Changeset.Deletes),
		)
		return result, nil
	}

	if err := s.persist(ctx, req.Prefix, result.Changeset); err != nil {
		return result, err
	}
	result.Persisted = !result.Changeset.Empty()

	if err := s.commit(ctx, req, pair); err != nil {
		return result, err
	}
	result.Committed = true

	if req.UpdateDeps {
		if s.deps == nil {
			return result, domain.NewDependencyUpdateError(req.OutputDir, errors.New("no dependency updater configured"))
		}
		s.logger.Info("updating chart dependencies", "outputDir", req.OutputDir)
		if err := s.deps.UpdateDependencies(ctx, req.OutputDir); err != nil {
			return result, domain.NewDependencyUpdateError(req.OutputDir, err)
		}
	}

	return result, nil
}

func (s *SyncService) load(ctx context.Context, prefix string) (domain.Registry, error) {
	ctx, span := s.tracer.Start(ctx, "vong.load")
	defer span.End()

	reg, err := LoadRegistry(ctx, s.store, prefix, s.logger)
	if err != nil {
		s.logger.Error("failed to load registry", "prefix", prefix, "error", err)
		return domain.Registry{}, err
	}
	span.SetAttributes(attribute.Int("vong.services", reg.Len()))
	return reg, nil
}

func (s *SyncService) mutate(ctx context.Context, reg domain.Registry, mutations []domain.Mutation) (domain.Registry, []domain.Change) {
	ctx, span := s.tracer.Start(ctx, "vong.mutate")
	defer span.End()

	next, changes := reg.ApplyAll(mutations)
	for i, c := range changes {
		s.logger.Info("applied mutation",
			"mutation", mutations[i].String(),
			"service", c.Name,
			"change", c.Kind.String(),
			"old", c.Old,
			"new", c.New,
		)
	}

	changed := domain.CountChanges(changes)
	s.mutations.Add(ctx, int64(changed))
	span.SetAttributes(attribute.Int("vong.changed", changed))
	return next, changes
}

func (s *SyncService) render(ctx context.Context, reg domain.Registry, req domain.SyncRequest) (domain.ManifestPair, error) {
	ctx, span := s.tracer.Start(ctx, "vong.render")
	defer span.End()

	overrides, err := LoadOverrides(ctx, s.store, req.ValuesPrefix, reg.Names())
	if err != nil {
		s.logger.Error("failed to load values overrides", "valuesPrefix", req.ValuesPrefix, "error", err)
		return domain.ManifestPair{}, err
	}

	pair, err := s.renderer.Render(reg, overrides, req.Repository)
	if err != nil {
		return domain.ManifestPair{}, fmt.Errorf("rendering manifests: %w", err)
	}
	s.logger.Info("rendered manifests",
		"services", reg.Len(),
		"requirementsSize", len(pair.Requirements),
		"valuesSize", len(pair.Values),
	)
	return pair, nil
}

func (s *SyncService) persist(ctx context.Context, prefix string, cs domain.Changeset) error {
	ctx, span := s.tracer.Start(ctx, "vong.persist")
	defer span.End()

	if cs.Empty() {
		s.logger.Info("registry unchanged, nothing to persist")
		return nil
	}

	if err := PersistChanges(ctx, s.store, prefix, cs); err != nil {
		s.logger.Error("failed to persist registry", "prefix", prefix, "error", err)
		return err
	}

	s.writes.Add(ctx, int64(len(cs.Puts)))
	s.deletes.Add(ctx, int64(len(cs.Deletes)))
	s.logger.Info("persisted registry", "prefix", prefix, "puts", len(cs.Puts), "deletes", len(cs.Deletes))
	return nil
}

func (s *SyncService) commit(ctx context.Context, req domain.SyncRequest, pair domain.ManifestPair) error {
	ctx, span := s.tracer.Start(ctx, "vong.commit", trace.WithAttributes(
		attribute.String("vong.output_dir", req.OutputDir),
	))
	defer span.End()

	scaffold, err := s.renderer.RenderChart(req.Chart)
	if err != nil {
		return fmt.Errorf("rendering chart scaffold: %w", err)
	}

	if err := s.writer.Commit(ctx, req.OutputDir, pair, scaffold); err != nil {
		s.logger.Error("failed to commit manifests", "outputDir", req.OutputDir, "error", err)
		return err
	}
	s.logger.Info("committed manifests", "outputDir", req.OutputDir)
	return nil
}

// manifestDiff returns the unified diffs of both documents, empty when neither changed.
func (s *SyncService) manifestDiff(current, rendered domain.ManifestPair) string {
	var parts []string
	if d := s.differ.ComputeDiff(
		domain.RequirementsFile+" (committed)", domain.RequirementsFile+" (rendered)",
		current.Requirements, rendered.Requirements,
	); d != "" {
		parts = append(parts, d)
	}
	if d := s.differ.ComputeDiff(
		domain.ValuesFile+" (committed)", domain.ValuesFile+" (rendered)",
		current.Values, rendered.Values,
	); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, "\n")
}
