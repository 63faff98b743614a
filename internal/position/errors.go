package position

import (
	"errors"
	"fmt"
)

// Kind classifies a position error.
type Kind string

const (
	KindPermissionDenied    Kind = "PERMISSION_DENIED"
	KindPositionUnavailable Kind = "POSITION_UNAVAILABLE"
	KindTimeout             Kind = "TIMEOUT"
	KindUnsupported         Kind = "UNSUPPORTED"
)

// Sentinel errors for use with errors.Is.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location information unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrUnsupported         = errors.New("location source not supported")
)

// Error is a position error with its kind and optional transport cause.
type Error struct {
	Kind Kind
	Err  error
}

// NewError creates an error of the given kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
	}
	return e.sentinel().Error()
}

// Unwrap returns the transport cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

// Message returns guidance suitable for showing to the person being tracked.
func (e *Error) Message() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Location permission denied. Please enable location access in your device settings."
	case KindPositionUnavailable:
		return "Location information unavailable. Please check your device settings."
	case KindTimeout:
		return "Location request timed out. Please try again."
	case KindUnsupported:
		return "Location tracking is not supported by this source."
	default:
		return "An unknown location error occurred."
	}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindPositionUnavailable:
		return ErrPositionUnavailable
	case KindTimeout:
		return ErrTimeout
	case KindUnsupported:
		return ErrUnsupported
	default:
		return ErrPositionUnavailable
	}
}

// KindOf returns the kind of a position error, or "" when err is not one.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}
