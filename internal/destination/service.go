package destination

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/models"
)

// Validation constants.
const (
	MaxNameLength    = 100
	MaxAddressLength = 300
	MinNotifyBefore  = 1
	MaxNotifyBefore  = 60
	MinRadiusMeters  = 10
	MaxRadiusMeters  = 1000
)

// ActiveListener is called with the active destination, or nil, whenever it
// may have changed.
type ActiveListener func(ctx context.Context, active *Destination)

// Service provides destination operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners map[int]ActiveListener
	nextID    int
}

// NewService creates a new destination service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]ActiveListener),
	}
}

// Subscribe registers fn for active destination changes. The returned
// function removes the registration.
func (s *Service) Subscribe(fn ActiveListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// List retrieves all destinations, newest first.
func (s *Service) List(ctx context.Context) ([]*Destination, error) {
	return s.repo.List(ctx)
}

// Get retrieves a destination by ID.
func (s *Service) Get(ctx context.Context, id string) (*Destination, error) {
	return s.repo.Get(ctx, id)
}

// Active returns the active destination, or nil when none is active.
func (s *Service) Active(ctx context.Context) (*Destination, error) {
	d, err := s.repo.GetActive(ctx)
	if errors.Is(err, ErrDestinationNotFound) {
		return nil, nil
	}
	return d, err
}

// Create validates input and stores a new destination.
func (s *Service) Create(ctx context.Context, input *models.DestinationCreateRequest) (*Destination, error) {
	if fieldErrors := validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := s.now().UTC()
	d := &Destination{
		ID:                  "dst_" + uuid.New().String()[:22],
		Name:                strings.TrimSpace(input.Name),
		Address:             strings.TrimSpace(input.Address),
		Lat:                 *input.Lat,
		Lng:                 *input.Lng,
		NotifyBeforeMinutes: DefaultNotifyBeforeMinutes,
		RadiusMeters:        DefaultRadiusMeters,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if input.NotifyBeforeMinutes != nil {
		d.NotifyBeforeMinutes = *input.NotifyBeforeMinutes
	}
	if input.RadiusMeters != nil {
		d.RadiusMeters = *input.RadiusMeters
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	if input.IsActive != nil && *input.IsActive {
		return s.Activate(ctx, d.ID)
	}
	return d, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, input *models.DestinationUpdateRequest) (*Destination, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if fieldErrors := validateUpdateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Name != nil {
		d.Name = strings.TrimSpace(*input.Name)
	}
	if input.Address != nil {
		d.Address = strings.TrimSpace(*input.Address)
	}
	if input.Lat != nil {
		d.Lat = *input.Lat
	}
	if input.Lng != nil {
		d.Lng = *input.Lng
	}
	if input.NotifyBeforeMinutes != nil {
		d.NotifyBeforeMinutes = *input.NotifyBeforeMinutes
	}
	if input.RadiusMeters != nil {
		d.RadiusMeters = *input.RadiusMeters
	}
	d.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	switch {
	case input.IsActive != nil && *input.IsActive:
		return s.Activate(ctx, id)
	case input.IsActive != nil && !*input.IsActive:
		return s.Deactivate(ctx, id)
	}

	if d.IsActive {
		s.publish(ctx)
	}
	return s.repo.Get(ctx, id)
}

// Delete deletes a destination.
func (s *Service) Delete(ctx context.Context, id string) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if d.IsActive {
		s.publish(ctx)
	}
	return nil
}

// Activate makes id the only active destination, starting a new trip.
func (s *Service) Activate(ctx context.Context, id string) (*Destination, error) {
	if err := s.repo.Activate(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	s.logger.Info().Str("destination_id", id).Msg("destination activated")
	s.publish(ctx)
	return s.repo.Get(ctx, id)
}

// Deactivate clears the active flag on id.
func (s *Service) Deactivate(ctx context.Context, id string) (*Destination, error) {
	if err := s.repo.Deactivate(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	s.publish(ctx)
	return s.repo.Get(ctx, id)
}

// MarkArrived records that the user reached id. Repeated calls are no-ops.
func (s *Service) MarkArrived(ctx context.Context, id string) error {
	changed, err := s.repo.MarkArrived(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info().Str("destination_id", id).Msg("destination marked arrived")
		s.publish(ctx)
	}
	return nil
}

// publish tells listeners about the current active destination.
func (s *Service) publish(ctx context.Context) {
	s.mu.RLock()
	listeners := make([]ActiveListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	active, err := s.Active(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load active destination for listeners")
		return
	}
	for _, fn := range listeners {
		fn(ctx, active)
	}
}

func validateCreateInput(input *models.DestinationCreateRequest) []models.FieldError {
	var errs []models.FieldError

	errs = append(errs, validateName(input.Name, "is required")...)
	errs = append(errs, validateAddress(input.Address, "is required")...)

	if input.Lat == nil {
		errs = append(errs, models.FieldError{Field: "lat", Message: "is required", Code: "REQUIRED"})
	} else {
		errs = append(errs, validateLat(*input.Lat)...)
	}
	if input.Lng == nil {
		errs = append(errs, models.FieldError{Field: "lng", Message: "is required", Code: "REQUIRED"})
	} else {
		errs = append(errs, validateLng(*input.Lng)...)
	}

	if input.NotifyBeforeMinutes != nil {
		errs = append(errs, validateNotifyBefore(*input.NotifyBeforeMinutes)...)
	}
	if input.RadiusMeters != nil {
		errs = append(errs, validateRadius(*input.RadiusMeters)...)
	}

	return errs
}

func validateUpdateInput(input *models.DestinationUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name != nil {
		errs = append(errs, validateName(*input.Name, "cannot be empty")...)
	}
	if input.Address != nil {
		errs = append(errs, validateAddress(*input.Address, "cannot be empty")...)
	}
	if input.Lat != nil {
		errs = append(errs, validateLat(*input.Lat)...)
	}
	if input.Lng != nil {
		errs = append(errs, validateLng(*input.Lng)...)
	}
	if input.NotifyBeforeMinutes != nil {
		errs = append(errs, validateNotifyBefore(*input.NotifyBeforeMinutes)...)
	}
	if input.RadiusMeters != nil {
		errs = append(errs, validateRadius(*input.RadiusMeters)...)
	}

	return errs
}

func validateName(name, emptyMessage string) []models.FieldError {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.FieldError{{Field: "name", Message: emptyMessage, Code: "REQUIRED"}}
	}
	if len(name) > MaxNameLength {
		return []models.FieldError{{Field: "name", Message: "must be at most 100 characters", Code: "TOO_LONG"}}
	}
	return nil
}

func validateAddress(address, emptyMessage string) []models.FieldError {
	address = strings.TrimSpace(address)
	if address == "" {
		return []models.FieldError{{Field: "address", Message: emptyMessage, Code: "REQUIRED"}}
	}
	if len(address) > MaxAddressLength {
		return []models.FieldError{{Field: "address", Message: "must be at most 300 characters", Code: "TOO_LONG"}}
	}
	return nil
}

func validateLat(lat float64) []models.FieldError {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return []models.FieldError{{Field: "lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"}}
	}
	return nil
}

func validateLng(lng float64) []models.FieldError {
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return []models.FieldError{{Field: "lng", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"}}
	}
	return nil
}

func validateNotifyBefore(minutes float64) []models.FieldError {
	if math.IsNaN(minutes) || minutes < MinNotifyBefore || minutes > MaxNotifyBefore {
		return []models.FieldError{{Field: "notifyBeforeMinutes", Message: "must be between 1 and 60", Code: "OUT_OF_RANGE"}}
	}
	return nil
}

func validateRadius(meters float64) []models.FieldError {
	if math.IsNaN(meters) || meters < MinRadiusMeters || meters > MaxRadiusMeters {
		return []models.FieldError{{Field: "radiusMeters", Message: "must be between 10 and 1000", Code: "OUT_OF_RANGE"}}
	}
	return nil
}

// ToAPI converts a domain Destination to an API Destination.
func ToAPI(d *Destination) models.Destination {
	return models.Destination{
		ID:                  d.ID,
		Name:                d.Name,
		Address:             d.Address,
		Lat:                 d.Lat,
		Lng:                 d.Lng,
		NotifyBeforeMinutes: d.NotifyBeforeMinutes,
		RadiusMeters:        d.RadiusMeters,
		IsActive:            d.IsActive,
		ArrivedAt:           models.TimestampPtr(d.ArrivedAt),
		CreatedAt:           models.Timestamp(d.CreatedAt),
		UpdatedAt:           models.Timestamp(d.UpdatedAt),
	}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
