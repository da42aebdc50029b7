package store

import (
	"context"

	"github.com/mwessel/netrollout/internal/core/domain"
)

// =============================================================================
// Archive Interface
// =============================================================================

// Archive is the append-only persistence interface for deployment runs.
// The in-memory history remains the source of truth for a live process;
// the archive makes runs auditable across restarts.
type Archive interface {
	// SaveRun persists a completed run with all its device results.
	SaveRun(ctx context.Context, result *domain.DeploymentResult) error

	// GetRun loads one run by ID, device results included.
	GetRun(ctx context.Context, id string) (*domain.DeploymentResult, error)

	// ListRuns returns runs newest first, device results included.
	ListRuns(ctx context.Context, opts ListOptions) ([]*domain.DeploymentResult, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
