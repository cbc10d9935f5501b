package models

import "time"

// MaxMessageLength is the longest message text accepted.
const MaxMessageLength = 140

// Message is a short post authored by exactly one user.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"userId"`
	User      *User     `json:"user,omitempty"`
}
