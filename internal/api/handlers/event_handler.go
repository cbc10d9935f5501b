package handlers

import (
	"net/http"

	"github.com/isdelr/warbler/internal/models"
	"github.com/isdelr/warbler/internal/services"
	"github.com/rs/zerolog/log"
)

// EventHandler handles HTTP requests related to the activity log.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent returns recent events; ?mine=1 narrows them to the current user.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 20, 200)

	var (
		events []models.Event
		err    error
	)
	if r.URL.Query().Get("mine") != "" {
		events, err = h.service.GetEventsForUser(r.Context(), currentUser(r).ID, limit)
	} else {
		events, err = h.service.GetRecentEvents(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve events")
		http.Error(w, "Failed to retrieve events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
