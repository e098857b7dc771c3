package core

import (
	"context"
)

// Starter is the interface for long running components.
type Starter interface {
	Start(ctx context.Context) error
}

// Archive stores snapshots of terminal jobs evicted from the registry.
type Archive interface {
	// Archive stores the given terminal jobs. Existing ids are overwritten.
	Archive(ctx context.Context, jobs []Job) error

	// GetArchived returns an archived job or ErrJobNotFound.
	GetArchived(ctx context.Context, id uint64) (Job, error)
}
