package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/isdelr/warbler/internal/services"
	ws "github.com/isdelr/warbler/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades HTTP connections to live message feeds.
type WebSocketHandler struct {
	hub      *ws.Hub
	users    services.UserServiceProvider
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. allowedOrigins limits
// cross-origin upgrades; same-origin requests are always accepted.
func NewWebSocketHandler(hub *ws.Hub, users services.UserServiceProvider, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:   hub,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin] || origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

// ServeGlobal streams every new message.
func (h *WebSocketHandler) ServeGlobal(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, services.GlobalFeedTopic)
}

// ServeUser streams one author's new messages.
func (h *WebSocketHandler) ServeUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if _, err := h.users.GetUserByID(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("user_id", id).Msg("Failed to look up feed owner")
		http.Error(w, "Failed to open feed", http.StatusInternalServerError)
		return
	}
	h.serve(w, r, services.FeedTopic(id))
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn, topic)
	h.hub.Register(client)
	log.Debug().Str("topic", topic).Msg("Websocket client subscribed")

	go client.WritePump()
	go client.ReadPump()
}
