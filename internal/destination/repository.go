package destination

import (
	"context"
	"time"
)

// Repository defines the interface for destination persistence.
type Repository interface {
	// Get retrieves a destination by ID.
	Get(ctx context.Context, id string) (*Destination, error)

	// List retrieves all destinations, newest first.
	List(ctx context.Context) ([]*Destination, error)

	// GetActive retrieves the active destination.
	// Returns ErrDestinationNotFound when none is active.
	GetActive(ctx context.Context) (*Destination, error)

	// Create stores a new, inactive destination.
	Create(ctx context.Context, d *Destination) error

	// Update stores the editable fields of an existing destination. It does
	// not change IsActive or ArrivedAt.
	Update(ctx context.Context, d *Destination) error

	// Delete deletes a destination by ID.
	Delete(ctx context.Context, id string) error

	// Activate makes id the only active destination and clears its
	// ArrivedAt, in one atomic step.
	Activate(ctx context.Context, id string, at time.Time) error

	// Deactivate clears IsActive on id.
	Deactivate(ctx context.Context, id string, at time.Time) error

	// MarkArrived sets ArrivedAt and clears IsActive unless ArrivedAt is
	// already set. It reports whether the destination changed.
	MarkArrived(ctx context.Context, id string, at time.Time) (bool, error)
}
