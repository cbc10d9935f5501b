package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/warbler/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrUnknownUser is returned by a UserLookup for ids that no longer exist.
var ErrUnknownUser = errors.New("unknown user")

// UserLookup resolves a user id to an account.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
}

type contextKey string

// CurrentUserKey is the context key for the logged-in user.
const CurrentUserKey = contextKey("currentUser")

// LoginPath is where anonymous visitors of protected routes are sent.
const LoginPath = "/login"

// Authenticator resolves the current user of a request and guards routes.
type Authenticator struct {
	sessions *SessionManager
	tokens   *TokenManager
	users    UserLookup
	isGone   func(error) bool
}

// NewAuthenticator wires sessions and bearer tokens to a user lookup. isGone
// reports whether a lookup error means the user was deleted.
func NewAuthenticator(sessions *SessionManager, tokens *TokenManager, users UserLookup, isGone func(error) bool) *Authenticator {
	if isGone == nil {
		isGone = func(err error) bool { return errors.Is(err, ErrUnknownUser) }
	}
	return &Authenticator{sessions: sessions, tokens: tokens, users: users, isGone: isGone}
}

// Sessions exposes the session manager to handlers.
func (a *Authenticator) Sessions() *SessionManager {
	return a.sessions
}

// Tokens exposes the token manager to handlers.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

// LoadUser puts the logged-in user, if any, into the request context. The
// session's user id wins; a bearer token is consulted otherwise.
func (a *Authenticator) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := a.userFromSession(w, r); ok {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CurrentUserKey, &user)))
			return
		}
		if user, ok := a.userFromToken(r); ok {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CurrentUserKey, &user)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) userFromSession(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	id, ok := a.sessions.CurrentUserID(r)
	if !ok {
		return models.User{}, false
	}
	user, err := a.users.GetUserByID(r.Context(), id)
	if err != nil {
		if a.isGone(err) {
			// The account was deleted out from under the session.
			if err := a.sessions.Logout(w, r); err != nil {
				log.Warn().Err(err).Msg("Failed to clear stale session")
			}
		} else {
			log.Error().Err(err).Int64("user_id", id).Msg("Failed to load session user")
		}
		return models.User{}, false
	}
	return user, true
}

func (a *Authenticator) userFromToken(r *http.Request) (models.User, bool) {
	if a.tokens == nil {
		return models.User{}, false
	}
	authHeader := r.Header.Get("Authorization")
	tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || strings.TrimSpace(tokenStr) == "" {
		return models.User{}, false
	}
	claims, err := a.tokens.ValidateJWT(strings.TrimSpace(tokenStr))
	if err != nil {
		log.Debug().Err(err).Msg("Rejected bearer token")
		return models.User{}, false
	}
	user, err := a.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		return models.User{}, false
	}
	return user, true
}

// RequireUser redirects anonymous requests to the login page without
// running the wrapped handler.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			if err := a.sessions.AddFlash(w, r, "Access unauthorized.", "danger"); err != nil {
				log.Warn().Err(err).Msg("Failed to save flash")
			}
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the logged-in user stored by LoadUser.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(CurrentUserKey).(*models.User)
	return user, ok && user != nil
}
