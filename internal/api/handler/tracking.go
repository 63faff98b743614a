package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/models"
	"github.com/pathnote/pathnote/internal/api/response"
	"github.com/pathnote/pathnote/internal/position"
	"github.com/pathnote/pathnote/internal/proximity"
	"github.com/pathnote/pathnote/internal/tracking"
	"github.com/pathnote/pathnote/pkg/geo"
)

// DefaultPermissionTimeout bounds a permission probe.
const DefaultPermissionTimeout = 15 * time.Second

// maxPositionBody caps the size of an ingested position message.
const maxPositionBody = 4 << 10

// Feed accepts samples and errors pushed by devices over HTTP.
type Feed interface {
	Publish(s position.Sample)
	Fail(err error)
}

// TrackingHandler handles tracking endpoints.
type TrackingHandler struct {
	tracker           *tracking.Tracker
	feed              Feed
	logger            zerolog.Logger
	permissionTimeout time.Duration
}

// NewTrackingHandler creates a new TrackingHandler. feed may be nil when
// positions arrive over a broker instead of HTTP.
func NewTrackingHandler(tracker *tracking.Tracker, feed Feed, logger zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracker:           tracker,
		feed:              feed,
		logger:            logger,
		permissionTimeout: DefaultPermissionTimeout,
	}
}

// StartTracking handles POST /v1/tracking/start. The body is optional.
func (h *TrackingHandler) StartTracking(w http.ResponseWriter, r *http.Request) {
	var input models.TrackingStartRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := validateStartRequest(&input); len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	if err := h.tracker.Start(r.Context(), optionsFrom(&input)); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toTrackingStatus(h.tracker.Status()))
}

// StopTracking handles POST /v1/tracking/stop. Stopping an idle tracker is
// not an error.
func (h *TrackingHandler) StopTracking(w http.ResponseWriter, r *http.Request) {
	h.tracker.Stop()
	response.JSON(w, r, http.StatusOK, toTrackingStatus(h.tracker.Status()))
}

// GetStatus handles GET /v1/tracking/status.
func (h *TrackingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toTrackingStatus(h.tracker.Status()))
}

// RequestPermission handles POST /v1/tracking/permission. A denied or failed
// probe is still a 200; the outcome is in the body.
func (h *TrackingHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.permissionTimeout)
	defer cancel()

	res := h.tracker.RequestPermission(ctx)
	out := models.PermissionResponse{Granted: res.Granted}
	if res.Sample != nil {
		out.Position = toPosition(*res.Sample)
	}
	if res.Err != nil {
		out.Error = toPositionError(res.Err)
	}
	response.JSON(w, r, http.StatusOK, out)
}

// IngestPosition handles POST /v1/tracking/positions.
func (h *TrackingHandler) IngestPosition(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		response.Conflict(w, r, "position ingestion over HTTP is not enabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPositionBody))
	if err != nil {
		response.BadRequest(w, r, "could not read body", nil)
		return
	}
	msg, err := position.DecodeMessage(body)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	h.feed.Publish(msg.Sample())
	response.NoContent(w, r)
}

// positionFailure is the body of POST /v1/tracking/errors.
type positionFailure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReportError handles POST /v1/tracking/errors, where a device reports that
// it can no longer deliver positions.
func (h *TrackingHandler) ReportError(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		response.Conflict(w, r, "position ingestion over HTTP is not enabled")
		return
	}

	var input positionFailure
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	kind := position.Kind(input.Kind)
	switch kind {
	case position.KindPermissionDenied, position.KindPositionUnavailable, position.KindTimeout:
	default:
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "kind", Message: "kind must be PERMISSION_DENIED, POSITION_UNAVAILABLE or TIMEOUT"},
		})
		return
	}

	var cause error
	if input.Message != "" {
		cause = errors.New(input.Message)
	}
	h.feed.Fail(position.NewError(kind, cause))
	response.NoContent(w, r)
}

func (h *TrackingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tracking.ErrAlreadyTracking) {
		response.Conflict(w, r, "tracking is already running")
		return
	}

	var perr *position.Error
	if errors.As(err, &perr) {
		response.LocationError(w, r, locationErrorStatus(perr.Kind), string(perr.Kind), perr.Message())
		return
	}

	h.logger.Error().Err(err).Msg("tracking request failed")
	response.InternalError(w, r, "internal server error")
}

func locationErrorStatus(kind position.Kind) int {
	switch kind {
	case position.KindPermissionDenied:
		return http.StatusForbidden
	case position.KindTimeout:
		return http.StatusGatewayTimeout
	case position.KindUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusServiceUnavailable
	}
}

func validateStartRequest(input *models.TrackingStartRequest) []models.FieldError {
	var errs []models.FieldError
	if input.TimeoutMs != nil && *input.TimeoutMs < 0 {
		errs = append(errs, models.FieldError{Field: "timeoutMs", Message: "timeoutMs must not be negative"})
	}
	if input.MaximumAgeMs != nil && *input.MaximumAgeMs < 0 {
		errs = append(errs, models.FieldError{Field: "maximumAgeMs", Message: "maximumAgeMs must not be negative"})
	}
	return errs
}

func optionsFrom(input *models.TrackingStartRequest) position.Options {
	opts := position.DefaultOptions()
	if input.HighAccuracy != nil {
		opts.HighAccuracy = *input.HighAccuracy
	}
	if input.TimeoutMs != nil {
		opts.Timeout = time.Duration(*input.TimeoutMs) * time.Millisecond
	}
	if input.MaximumAgeMs != nil {
		opts.MaxCacheAge = time.Duration(*input.MaximumAgeMs) * time.Millisecond
	}
	return opts
}

func toTrackingStatus(s tracking.Status) models.TrackingStatus {
	out := models.TrackingStatus{
		Tracking:  s.Tracking,
		State:     s.State.String(),
		Samples:   s.Samples,
		Path:      s.EncodedPath,
		StartedAt: models.TimestampPtr(s.StartedAt),
	}
	if s.LastSample != nil {
		out.LastPosition = toPosition(*s.LastSample)
	}
	if s.LastError != nil {
		out.LastError = toPositionError(s.LastError)
	}

	if s.State == proximity.StateMonitoring && s.DestinationID != "" {
		id := s.DestinationID
		out.ActiveDestinationID = &id
		if s.LastSample != nil {
			distance, speed := s.DistanceMeters, s.SpeedMps
			out.DistanceMeters = &distance
			out.SpeedMps = &speed
			out.Distance = geo.FormatDistance(distance)
			// ETA is unknown while stationary.
			if s.ETAMinutes > 0 {
				eta := s.ETAMinutes
				out.ETAMinutes = &eta
				out.ETA = geo.FormatETA(eta)
			}
		}
	}
	return out
}

func toPosition(s position.Sample) *models.Position {
	return &models.Position{
		Lat:          s.Lat,
		Lng:          s.Lng,
		Accuracy:     s.AccuracyMeters,
		CapturedAtMs: s.CapturedAt.UnixMilli(),
	}
}

func toPositionError(err error) *models.PositionError {
	var perr *position.Error
	if !errors.As(err, &perr) {
		perr = position.NewError(position.KindPositionUnavailable, err)
	}
	return &models.PositionError{Kind: string(perr.Kind), Message: perr.Message()}
}
