package destination

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Repository = (*InMemoryRepository)(nil)

// InMemoryRepository is an in-memory implementation of Repository, used for
// single-device deployments and tests.
type InMemoryRepository struct {
	mu           sync.RWMutex
	destinations map[string]*Destination
}

// NewInMemoryRepository creates a new in-memory destination repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		destinations: make(map[string]*Destination),
	}
}

// Get retrieves a destination by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.destinations[id]
	if !ok {
		return nil, ErrDestinationNotFound
	}
	return d.clone(), nil
}

// List retrieves all destinations, newest first.
func (r *InMemoryRepository) List(_ context.Context) ([]*Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Destination, 0, len(r.destinations))
	for _, d := range r.destinations {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetActive retrieves the active destination.
func (r *InMemoryRepository) GetActive(_ context.Context) (*Destination, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.destinations {
		if d.IsActive {
			return d.clone(), nil
		}
	}
	return nil, ErrDestinationNotFound
}

// Create stores a new destination.
func (r *InMemoryRepository) Create(_ context.Context, d *Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := d.clone()
	cpy.IsActive = false
	cpy.ArrivedAt = nil
	r.destinations[d.ID] = cpy
	return nil
}

// Update stores the editable fields of an existing destination.
func (r *InMemoryRepository) Update(_ context.Context, d *Destination) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.destinations[d.ID]
	if !ok {
		return ErrDestinationNotFound
	}

	existing.Name = d.Name
	existing.Address = d.Address
	existing.Lat = d.Lat
	existing.Lng = d.Lng
	existing.NotifyBeforeMinutes = d.NotifyBeforeMinutes
	existing.RadiusMeters = d.RadiusMeters
	existing.UpdatedAt = d.UpdatedAt
	return nil
}

// Delete deletes a destination by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.destinations[id]; !ok {
		return ErrDestinationNotFound
	}
	delete(r.destinations, id)
	return nil
}

// Activate makes id the only active destination.
func (r *InMemoryRepository) Activate(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.destinations[id]
	if !ok {
		return ErrDestinationNotFound
	}

	for _, d := range r.destinations {
		if d.IsActive && d.ID != id {
			d.IsActive = false
			d.UpdatedAt = at
		}
	}
	target.IsActive = true
	target.ArrivedAt = nil
	target.UpdatedAt = at
	return nil
}

// Deactivate clears IsActive on id.
func (r *InMemoryRepository) Deactivate(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.destinations[id]
	if !ok {
		return ErrDestinationNotFound
	}
	if d.IsActive {
		d.IsActive = false
		d.UpdatedAt = at
	}
	return nil
}

// MarkArrived records an arrival once.
func (r *InMemoryRepository) MarkArrived(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.destinations[id]
	if !ok {
		return false, ErrDestinationNotFound
	}
	if d.ArrivedAt != nil {
		return false, nil
	}

	arrived := at
	d.ArrivedAt = &arrived
	d.IsActive = false
	d.UpdatedAt = at
	return true, nil
}
