package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pathnote/pathnote/internal/api/models"
	"github.com/pathnote/pathnote/internal/api/response"
	"github.com/pathnote/pathnote/internal/destination"
)

// DestinationHandler handles destination endpoints.
type DestinationHandler struct {
	service *destination.Service
	logger  zerolog.Logger
}

// NewDestinationHandler creates a new DestinationHandler.
func NewDestinationHandler(service *destination.Service, logger zerolog.Logger) *DestinationHandler {
	return &DestinationHandler{service: service, logger: logger}
}

// ListDestinations handles GET /v1/destinations.
func (h *DestinationHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]models.Destination, 0, len(list))
	for _, d := range list {
		items = append(items, destination.ToAPI(d))
	}
	response.JSON(w, r, http.StatusOK, models.DestinationList{Items: items})
}

// CreateDestination handles POST /v1/destinations.
func (h *DestinationHandler) CreateDestination(w http.ResponseWriter, r *http.Request) {
	var input models.DestinationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	d, err := h.service.Create(r.Context(), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.DestinationCreated(w, r, destination.ToAPI(d))
}

// GetDestination handles GET /v1/destinations/{destinationId}.
func (h *DestinationHandler) GetDestination(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "destinationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, destination.ToAPI(d))
}

// UpdateDestination handles PATCH /v1/destinations/{destinationId}.
func (h *DestinationHandler) UpdateDestination(w http.ResponseWriter, r *http.Request) {
	var input models.DestinationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	d, err := h.service.Update(r.Context(), chi.URLParam(r, "destinationId"), &input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, destination.ToAPI(d))
}

// DeleteDestination handles DELETE /v1/destinations/{destinationId}.
func (h *DestinationHandler) DeleteDestination(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "destinationId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// ActivateDestination handles POST /v1/destinations/{destinationId}/activate.
func (h *DestinationHandler) ActivateDestination(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Activate(r.Context(), chi.URLParam(r, "destinationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, destination.ToAPI(d))
}

// DeactivateDestination handles POST /v1/destinations/{destinationId}/deactivate.
func (h *DestinationHandler) DeactivateDestination(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Deactivate(r.Context(), chi.URLParam(r, "destinationId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, destination.ToAPI(d))
}

// MarkArrived handles POST /v1/destinations/{destinationId}/arrived. The
// first call stamps the arrival; later calls return the destination as is.
func (h *DestinationHandler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "destinationId")
	if err := h.service.MarkArrived(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, destination.ToAPI(d))
}

func (h *DestinationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *destination.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, "validation failed", verr.Errors)
	case errors.Is(err, destination.ErrDestinationNotFound):
		response.NotFound(w, r, "destination not found")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("destination request failed")
		response.InternalError(w, r, "internal server error")
	}
}
