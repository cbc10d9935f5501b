package auth

import (
	"encoding/gob"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// CurrUserKey is the session key holding the logged-in user's id.
const CurrUserKey = "curr_user"

func init() {
	gob.Register(Flash{})
}

// SessionManager binds user identities to a signed cookie session.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
}

// NewSessionManager creates a cookie-backed session manager.
func NewSessionManager(secret, name string, maxAge time.Duration, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{store: store, name: name}
}

func (m *SessionManager) session(r *http.Request) *sessions.Session {
	// A cookie that fails to decode (e.g. after a secret rotation) still
	// yields a fresh session, which is all we need.
	s, _ := m.store.Get(r, m.name)
	return s
}

// Login binds userID to the session.
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, userID int64) error {
	s := m.session(r)
	s.Values[CurrUserKey] = userID
	return s.Save(r, w)
}

// Logout removes the user binding from the session.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	delete(s.Values, CurrUserKey)
	return s.Save(r, w)
}

// CurrentUserID returns the id stored under CurrUserKey, if any.
func (m *SessionManager) CurrentUserID(r *http.Request) (int64, bool) {
	id, ok := m.session(r).Values[CurrUserKey].(int64)
	return id, ok && id > 0
}

// AddFlash queues a one-shot message for the next response.
func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, message, category string) error {
	s := m.session(r)
	s.AddFlash(Flash{Message: message, Category: category})
	return s.Save(r, w)
}

// Flashes pops queued flash messages.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	s := m.session(r)
	raw := s.Flashes()
	if len(raw) == 0 {
		return nil
	}
	flashes := make([]Flash, 0, len(raw))
	for _, f := range raw {
		if flash, ok := f.(Flash); ok {
			flashes = append(flashes, flash)
		}
	}
	s.Save(r, w)
	return flashes
}

// Flash is a message shown once, with a category such as "danger" or "success".
type Flash struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}
