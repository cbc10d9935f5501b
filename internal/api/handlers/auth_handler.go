package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/warbler/internal/auth"
	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/isdelr/warbler/internal/services"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles signup, login and token issuance.
type AuthHandler struct {
	service services.UserServiceProvider
	auth    *auth.Authenticator
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.UserServiceProvider, authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{service: service, auth: authenticator}
}

// SignupForm describes the signup form.
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields":  []string{"username", "email", "password", "image_url"},
		"flashes": h.auth.Sessions().Flashes(w, r),
	})
}

// Signup creates an account and logs it in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(r.Context(), fields.Get("username"), fields.Get("email"), fields.Get("password"), fields.Get("image_url"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateUsername):
			http.Error(w, "Username already taken", http.StatusConflict)
		case errors.Is(err, services.ErrDuplicateEmail):
			http.Error(w, "Email already registered", http.StatusConflict)
		case errors.Is(err, database.ErrIntegrity):
			http.Error(w, "Account already exists", http.StatusConflict)
		case errors.Is(err, services.ErrMissingField), errors.Is(err, services.ErrInvalidEmail):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			log.Error().Err(err).Str("username", fields.Get("username")).Msg("Failed to register user")
			http.Error(w, "Failed to register user", http.StatusInternalServerError)
		}
		return
	}
	monitoring.RegisterSuccess.Inc()

	if err := h.auth.Sessions().Login(w, r, user.ID); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to save session")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// LoginForm describes the login form.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fields":  []string{"username", "password"},
		"flashes": h.auth.Sessions().Flashes(w, r),
	})
}

// Login authenticates credentials and binds the user to the session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username, password := fields.Get("username"), fields.Get("password")
	if username == "" || password == "" {
		monitoring.LoginFailure.WithLabelValues("missing_fields").Inc()
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.service.Authenticate(r.Context(), username, password)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to authenticate user")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	if user == nil {
		monitoring.LoginFailure.WithLabelValues("invalid_credentials").Inc()
		log.Warn().Str("username", username).Msg("Failed authentication attempt")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := h.auth.Sessions().Login(w, r, user.ID); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to save session")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	monitoring.LoginSuccess.Inc()
	if err := h.auth.Sessions().AddFlash(w, r, "Hello, "+user.Username+"!", "success"); err != nil {
		log.Warn().Err(err).Msg("Failed to save flash")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session user.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessions := h.auth.Sessions()
	if err := sessions.Logout(w, r); err != nil {
		log.Error().Err(err).Msg("Failed to clear session")
	}
	if err := sessions.AddFlash(w, r, "You have successfully logged out.", "success"); err != nil {
		log.Warn().Err(err).Msg("Failed to save flash")
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusFound)
}

// Token exchanges credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.service.Authenticate(r.Context(), fields.Get("username"), fields.Get("password"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to authenticate token request")
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	if user == nil {
		monitoring.LoginFailure.WithLabelValues("invalid_token_credentials").Inc()
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.Tokens().GenerateJWT(*user)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to generate JWT")
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}
