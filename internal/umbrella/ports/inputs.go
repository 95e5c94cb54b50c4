package ports

import (
	"context"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

// SyncUseCase is the driving port: reconcile mutations with the store and
// render the umbrella chart manifests.
type SyncUseCase interface {
	Execute(ctx context.Context, req domain.SyncRequest) (domain.SyncResult, error)
}
