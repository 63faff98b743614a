// Package geocode resolves free-text addresses to coordinates and back.
package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/pathnote/pathnote/pkg/geo"
)

// Sentinel errors for geocoding failures.
var (
	ErrEmptyQuery          = errors.New("query is empty")
	ErrInvalidCoordinate   = errors.New("invalid coordinate")
	ErrNotFound            = errors.New("no place found")
	ErrRejected            = errors.New("request rejected by provider")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
)

// Place is a resolved location.
type Place struct {
	Name        string
	DisplayName string
	Coordinate  geo.Coordinate
}

// Provider looks places up by text or by coordinate.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Place, error)
	Reverse(ctx context.Context, c geo.Coordinate) (*Place, error)
}

// Error carries provider context for a failed lookup.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the lookup may succeed if tried again later.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// NormalizeQuery trims and collapses whitespace in a free-text query.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
