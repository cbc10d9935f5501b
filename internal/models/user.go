package models

import "time"

// DefaultImageURL is used when a user signs up without a profile image.
const DefaultImageURL = "/static/images/default-pic.png"

// DefaultHeaderImageURL is the profile header shown until a user sets one.
const DefaultHeaderImageURL = "/static/images/warbler-hero.jpg"

// User represents a Warbler account.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	PasswordHash   string    `json:"-"` // Never expose this to the client
	ImageURL       string    `json:"imageUrl"`
	HeaderImageURL string    `json:"headerImageUrl"`
	Bio            string    `json:"bio"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Public returns a copy safe to show to other users.
func (u User) Public() User {
	u.Email = ""
	u.PasswordHash = ""
	return u
}

// UserProfile is a user plus the counters shown on profile pages.
type UserProfile struct {
	User
	MessageCount   int `json:"messageCount"`
	FollowingCount int `json:"followingCount"`
	FollowerCount  int `json:"followerCount"`
}
