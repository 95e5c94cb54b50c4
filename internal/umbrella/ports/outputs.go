package ports

import (
	"context"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

// StateStorePort abstracts the hierarchical key-value store holding the
// persisted service versions. Get reports found=false for absent keys.
type StateStorePort interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// KeyValue is a single key write inside a batch.
type KeyValue struct {
	Key   string
	Value []byte
}

// BatchStateStore is implemented by stores that can commit several writes
// atomically.
type BatchStateStore interface {
	StateStorePort
	ApplyBatch(ctx context.Context, puts []KeyValue, deletes []string) error
}

// RendererPort projects a registry into the manifest pair, and renders the
// Chart.yaml scaffold used when the output directory has none.
type RendererPort interface {
	Render(reg domain.Registry, overrides domain.ValuesOverrides, repo domain.RepositoryConfig) (domain.ManifestPair, error)
	RenderChart(meta domain.ChartMetadata) ([]byte, error)
}

// WriterPort reads and atomically commits the manifest pair in a chart
// directory. chartScaffold is written as Chart.yaml only when none exists.
type WriterPort interface {
	Read(ctx context.Context, dir string) (domain.ManifestPair, error)
	Commit(ctx context.Context, dir string, pair domain.ManifestPair, chartScaffold []byte) error
}

// DiffPort abstracts diff computation between two manifests.
type DiffPort interface {
	ComputeDiff(baseName, headName string, base, head []byte) string
}

// DependencyUpdaterPort fetches the sub-charts listed in requirements.yaml.
type DependencyUpdaterPort interface {
	UpdateDependencies(ctx context.Context, chartDir string) error
}
