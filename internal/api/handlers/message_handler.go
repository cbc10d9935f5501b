package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/isdelr/warbler/internal/services"
	"github.com/rs/zerolog/log"
)

// MessageHandler handles HTTP requests for messages.
type MessageHandler struct {
	service services.MessageServiceProvider
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(service services.MessageServiceProvider) *MessageHandler {
	return &MessageHandler{service: service}
}

// Create posts a message as the current user.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := h.service.CreateMessage(r.Context(), user.ID, fields.Get("text"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidMessage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create message")
		http.Error(w, "Failed to create message", http.StatusInternalServerError)
		return
	}
	monitoring.MessagesPosted.Inc()
	log.Debug().Int64("message_id", message.ID).Int64("user_id", user.ID).Msg("Message posted")

	http.Redirect(w, r, userPath(user.ID), http.StatusFound)
}

// Get returns a single message with its author.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	message, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("message_id", id).Msg("Failed to get message")
		http.Error(w, "Failed to get message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

// Delete removes a message owned by the current user.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	if err := h.service.DeleteMessage(r.Context(), id, user.ID); err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			http.Error(w, "Message not found", http.StatusNotFound)
		case errors.Is(err, services.ErrNotOwner):
			http.Error(w, "Access unauthorized.", http.StatusForbidden)
		default:
			log.Error().Err(err).Int64("message_id", id).Msg("Failed to delete message")
			http.Error(w, "Failed to delete message", http.StatusInternalServerError)
		}
		return
	}
	http.Redirect(w, r, userPath(user.ID), http.StatusFound)
}
