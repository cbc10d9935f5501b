package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/isdelr/warbler/internal/auth"
	"github.com/isdelr/warbler/internal/models"
	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/isdelr/warbler/internal/services"
	"github.com/rs/zerolog/log"
)

// UserHandler handles HTTP requests for profiles and the follow graph.
type UserHandler struct {
	service  services.UserServiceProvider
	messages services.MessageServiceProvider
	sessions *auth.SessionManager
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, messages services.MessageServiceProvider, sessions *auth.SessionManager) *UserHandler {
	return &UserHandler{service: service, messages: messages, sessions: sessions}
}

// Home shows the logged-in user's timeline, or the latest public messages.
func (h *UserHandler) Home(w http.ResponseWriter, r *http.Request) {
	user, loggedIn := auth.UserFromContext(r.Context())

	var (
		messages []models.Message
		err      error
	)
	if loggedIn {
		messages, err = h.messages.Timeline(r.Context(), user.ID, pageLimit)
	} else {
		messages, err = h.messages.PublicTimeline(r.Context(), pageLimit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load timeline")
		http.Error(w, "Failed to load timeline", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"messages": messages,
		"flashes":  h.sessions.Flashes(w, r),
	})
}

// List returns all users, filtered by ?q= when given.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, publicUsers(users))
}

// Show returns a profile with the user's messages.
func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	messages, err := h.messages.MessagesByUser(r.Context(), profile.ID, pageLimit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", profile.ID).Msg("Failed to load messages")
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"user":     profile,
		"messages": messages,
	}
	if viewer, ok := auth.UserFromContext(r.Context()); ok && viewer.ID != profile.ID {
		following, err := h.service.IsFollowing(r.Context(), viewer.ID, profile.ID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", viewer.ID).Msg("Failed to check follow")
			http.Error(w, "Failed to load profile", http.StatusInternalServerError)
			return
		}
		followedBy, err := h.service.IsFollowedBy(r.Context(), viewer.ID, profile.ID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", viewer.ID).Msg("Failed to check follower")
			http.Error(w, "Failed to load profile", http.StatusInternalServerError)
			return
		}
		resp["isFollowing"] = following
		resp["followsYou"] = followedBy
	}
	writeJSON(w, http.StatusOK, resp)
}

// Following lists the users a user follows.
func (h *UserHandler) Following(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	users, err := h.service.Following(r.Context(), profile.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", profile.ID).Msg("Failed to list followed users")
		http.Error(w, "Failed to list followed users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": profile, "following": publicUsers(users)})
}

// Followers lists the users following a user.
func (h *UserHandler) Followers(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.loadProfile(w, r)
	if !ok {
		return
	}
	users, err := h.service.Followers(r.Context(), profile.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", profile.ID).Msg("Failed to list followers")
		http.Error(w, "Failed to list followers", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": profile, "followers": publicUsers(users)})
}

// Follow makes the current user follow {id}.
func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, "follow", h.service.Follow)
}

// StopFollowing removes the current user's follow of {id}.
func (h *UserHandler) StopFollowing(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, "unfollow", h.service.Unfollow)
}

func (h *UserHandler) changeFollow(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, followerID, followedID int64) error) {
	user := currentUser(r)
	targetID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if err := apply(r.Context(), user.ID, targetID); err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
			return
		case errors.Is(err, services.ErrSelfFollow):
			h.flash(w, r, "You cannot follow yourself.", "danger")
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Int64("target_id", targetID).Str("action", action).Msg("Failed to update follow")
			http.Error(w, "Failed to update follow", http.StatusInternalServerError)
			return
		}
	} else {
		monitoring.Follows.WithLabelValues(action).Inc()
	}
	http.Redirect(w, r, userPath(user.ID)+"/following", http.StatusFound)
}

// Profile returns the current user's editable profile.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	profile, err := h.service.GetProfile(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to load profile")
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    profile,
		"fields":  []string{"username", "email", "image_url", "header_image_url", "bio", "location", "password"},
		"flashes": h.sessions.Flashes(w, r),
	})
}

// UpdateProfile applies profile edits after re-checking the password.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	update := services.ProfileUpdate{
		Username:       fields.Get("username"),
		Email:          fields.Get("email"),
		ImageURL:       fields.Get("image_url"),
		HeaderImageURL: fields.Get("header_image_url"),
		Bio:            fields.Get("bio"),
		Location:       fields.Get("location"),
	}
	updated, err := h.service.UpdateProfile(r.Context(), user.ID, update, fields.Get("password"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPassword):
			http.Error(w, "Wrong password, please try again.", http.StatusUnauthorized)
		case errors.Is(err, services.ErrDuplicateUsername):
			http.Error(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, services.ErrDuplicateEmail):
			http.Error(w, "Email already registered", http.StatusConflict)
		case errors.Is(err, services.ErrInvalidEmail):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to update profile")
			http.Error(w, "Failed to update profile", http.StatusInternalServerError)
		}
		return
	}

	h.flash(w, r, "Profile updated.", "success")
	http.Redirect(w, r, userPath(updated.ID), http.StatusFound)
}

// Delete removes the current user's account and logs them out.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if err := h.service.DeleteUser(r.Context(), user.ID); err != nil && !errors.Is(err, services.ErrUserNotFound) {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to delete user")
		http.Error(w, "Failed to delete user", http.StatusInternalServerError)
		return
	}
	if err := h.sessions.Logout(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear session")
	}
	http.Redirect(w, r, "/signup", http.StatusFound)
}

func (h *UserHandler) loadProfile(w http.ResponseWriter, r *http.Request) (models.UserProfile, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "User not found", http.StatusNotFound)
		return models.UserProfile{}, false
	}
	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
		} else {
			log.Error().Err(err).Int64("user_id", id).Msg("Failed to load profile")
			http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		}
		return models.UserProfile{}, false
	}
	if viewer, ok := auth.UserFromContext(r.Context()); !ok || viewer.ID != profile.ID {
		profile.User = profile.User.Public()
	}
	return profile, true
}

func publicUsers(users []models.User) []models.User {
	public := make([]models.User, len(users))
	for i, u := range users {
		public[i] = u.Public()
	}
	return public
}

func (h *UserHandler) flash(w http.ResponseWriter, r *http.Request, message, category string) {
	if err := h.sessions.AddFlash(w, r, message, category); err != nil {
		log.Warn().Err(err).Msg("Failed to save flash")
	}
}
