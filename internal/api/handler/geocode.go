package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/models"
	"github.com/pathnote/pathnote/internal/api/response"
	"github.com/pathnote/pathnote/internal/geocode"
	"github.com/pathnote/pathnote/pkg/geo"
)

// maxGeocodeLimit caps the number of search results a client may ask for.
const maxGeocodeLimit = 20

// GeocodeHandler handles geocoding endpoints.
type GeocodeHandler struct {
	provider geocode.Provider
	logger   zerolog.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(provider geocode.Provider, logger zerolog.Logger) *GeocodeHandler {
	return &GeocodeHandler{provider: provider, logger: logger}
}

// Search handles GET /v1/geocode?q=&limit=.
func (h *GeocodeHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxGeocodeLimit {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "limit", Message: "limit must be between 1 and " + strconv.Itoa(maxGeocodeLimit)},
			})
			return
		}
		limit = n
	}

	places, err := h.provider.Search(r.Context(), query.Get("q"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]models.Place, 0, len(places))
	for _, p := range places {
		items = append(items, toPlace(p))
	}
	response.JSON(w, r, http.StatusOK, models.PlaceList{Items: items})
}

// Reverse handles GET /v1/geocode/reverse?lat=&lon=.
func (h *GeocodeHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var errs []models.FieldError
	lat, err := strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil {
		errs = append(errs, models.FieldError{Field: "lat", Message: "lat must be a number"})
	}
	lng, err := strconv.ParseFloat(query.Get("lon"), 64)
	if err != nil {
		errs = append(errs, models.FieldError{Field: "lon", Message: "lon must be a number"})
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation failed", errs)
		return
	}

	place, err := h.provider.Reverse(r.Context(), geo.Coordinate{Lat: lat, Lng: lng})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toPlace(*place))
}

func (h *GeocodeHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geocode.ErrEmptyQuery):
		response.BadRequest(w, r, "q is required", []models.FieldError{
			{Field: "q", Message: "q is required"},
		})
	case errors.Is(err, geocode.ErrInvalidCoordinate):
		response.BadRequest(w, r, "coordinate out of range", nil)
	case errors.Is(err, geocode.ErrNotFound):
		response.NotFound(w, r, "no place found")
	case errors.Is(err, geocode.ErrRateLimitExceeded), errors.Is(err, geocode.ErrProviderUnavailable):
		h.logger.Warn().Err(err).Str("provider", h.provider.Name()).Msg("geocoding provider unavailable")
		response.ServiceUnavailable(w, r, "geocoding is temporarily unavailable")
	case errors.Is(err, geocode.ErrRejected):
		response.BadGateway(w, r, "geocoding provider rejected the request")
	default:
		h.logger.Error().Err(err).Str("provider", h.provider.Name()).Msg("geocoding failed")
		response.BadGateway(w, r, "geocoding failed")
	}
}

func toPlace(p geocode.Place) models.Place {
	return models.Place{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Lat:         p.Coordinate.Lat,
		Lng:         p.Coordinate.Lng,
	}
}
