package ports

import (
	"context"

	"github.com/samirrijal/pinmap/internal/core/domain"
)

// PinRepository reads listing pins and visit drafts from storage.
type PinRepository interface {
	PointsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerPoint, error)
	DraftsInBounds(ctx context.Context, q domain.PinsQuery) ([]domain.ServerDraft, error)
	GetPoint(ctx context.Context, id string) (*domain.ServerPoint, error)
}
