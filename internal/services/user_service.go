package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrSelfFollow        = errors.New("users cannot follow themselves")
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Signup(username, email, password, imageURL string) (models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	Register(ctx context.Context, username, email, password, imageURL string) (models.User, error)
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetProfile(ctx context.Context, id int64) (models.UserProfile, error)
	ListUsers(ctx context.Context, search string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id int64, update ProfileUpdate, password string) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	Follow(ctx context.Context, followerID, followedID int64) error
	Unfollow(ctx context.Context, followerID, followedID int64) error
	IsFollowing(ctx context.Context, userID, otherID int64) (bool, error)
	IsFollowedBy(ctx context.Context, userID, otherID int64) (bool, error)
	Following(ctx context.Context, userID int64) ([]models.User, error)
	Followers(ctx context.Context, userID int64) ([]models.User, error)
}

// ProfileUpdate carries the editable profile fields. Empty values keep the
// current setting, except Bio and Location which may be cleared.
type ProfileUpdate struct {
	Username       string
	Email          string
	ImageURL       string
	HeaderImageURL string
	Bio            string
	Location       string
}

// UserService provides business logic for accounts and the follow graph.
type UserService struct {
	db           *sql.DB
	eventService EventServiceProvider
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB, eventService EventServiceProvider) *UserService {
	return &UserService{db: db, eventService: eventService}
}

const userColumns = "id, username, email, password, COALESCE(image_url, ''), COALESCE(header_image_url, ''), COALESCE(bio, ''), COALESCE(location, ''), created_at"

// joinedUserColumns is userColumns for queries that alias users as u.
const joinedUserColumns = "u.id, u.username, u.email, u.password, COALESCE(u.image_url, ''), COALESCE(u.header_image_url, ''), COALESCE(u.bio, ''), COALESCE(u.location, ''), u.created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ImageURL, &u.HeaderImageURL, &u.Bio, &u.Location, &u.CreatedAt)
	return u, err
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = ""
		users = append(users, u)
	}
	return users, rows.Err()
}

// Signup hashes the password and builds a new, unsaved user.
// Persist it with CreateUser.
func (s *UserService) Signup(username, email, password, imageURL string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return models.User{}, ErrMissingField
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, ErrInvalidEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	if strings.TrimSpace(imageURL) == "" {
		imageURL = models.DefaultImageURL
	}
	return models.User{
		Username:       username,
		Email:          email,
		PasswordHash:   string(hashedPassword),
		ImageURL:       imageURL,
		HeaderImageURL: models.DefaultHeaderImageURL,
	}, nil
}

// CreateUser inserts a user built by Signup and sets its generated ID.
// Duplicate usernames or emails fail with an error matching both
// database.ErrIntegrity and ErrDuplicateUsername or ErrDuplicateEmail.
func (s *UserService) CreateUser(ctx context.Context, user *models.User) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password, image_url, header_image_url, bio, location) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.ImageURL, user.HeaderImageURL, user.Bio, user.Location)
	if err != nil {
		return classifyUserWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// Register signs up and persists a user in one step.
func (s *UserService) Register(ctx context.Context, username, email, password, imageURL string) (models.User, error) {
	user, err := s.Signup(username, email, password, imageURL)
	if err != nil {
		return models.User{}, err
	}
	if err := s.CreateUser(ctx, &user); err != nil {
		return models.User{}, err
	}
	s.recordEvent(ctx, "user.signup", fmt.Sprintf("User '%s' signed up.", user.Username), user.ID)

	user.PasswordHash = ""
	return user, nil
}

// Authenticate returns the user when the password matches. An unknown
// username or a wrong password yields nil with no error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return &user, nil
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
		}
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// GetUserByUsername retrieves a single user by their username.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %q: %w", username, ErrUserNotFound)
		}
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// GetProfile returns the user together with message and follow counts.
func (s *UserService) GetProfile(ctx context.Context, id int64) (models.UserProfile, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return models.UserProfile{}, err
	}
	profile := models.UserProfile{User: user}
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE user_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?),
			(SELECT COUNT(*) FROM follows WHERE followed_id = ?)`,
		id, id, id).Scan(&profile.MessageCount, &profile.FollowingCount, &profile.FollowerCount)
	if err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}

// ListUsers returns all users, or those whose username contains search.
func (s *UserService) ListUsers(ctx context.Context, search string) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users"
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += " WHERE username LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += " ORDER BY username"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UpdateProfile verifies the user's current password, then applies the update.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate, password string) (models.User, error) {
	current, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
		}
		return models.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(password)) != nil {
		return models.User{}, ErrInvalidPassword
	}

	if v := strings.TrimSpace(update.Username); v != "" {
		current.Username = v
	}
	if v := strings.TrimSpace(update.Email); v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			return models.User{}, ErrInvalidEmail
		}
		current.Email = v
	}
	if v := strings.TrimSpace(update.ImageURL); v != "" {
		current.ImageURL = v
	}
	if v := strings.TrimSpace(update.HeaderImageURL); v != "" {
		current.HeaderImageURL = v
	}
	current.Bio = strings.TrimSpace(update.Bio)
	current.Location = strings.TrimSpace(update.Location)

	_, err = s.db.ExecContext(ctx,
		"UPDATE users SET username = ?, email = ?, image_url = ?, header_image_url = ?, bio = ?, location = ? WHERE id = ?",
		current.Username, current.Email, current.ImageURL, current.HeaderImageURL, current.Bio, current.Location, id)
	if err != nil {
		return models.User{}, classifyUserWriteError(err)
	}
	return s.GetUserByID(ctx, id)
}

// DeleteUser removes a user. Their messages and follow edges go with them.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
	}
	s.recordEvent(ctx, "user.delete", fmt.Sprintf("User %d deleted their account.", id), 0)
	return nil
}

// Follow adds the edge followerID -> followedID. Following twice is a no-op.
func (s *UserService) Follow(ctx context.Context, followerID, followedID int64) error {
	if followerID == followedID {
		return ErrSelfFollow
	}
	followed, err := s.GetUserByID(ctx, followedID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO follows (follower_id, followed_id) VALUES (?, ?)", followerID, followedID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.recordEvent(ctx, "user.follow", fmt.Sprintf("User %d followed '%s'.", followerID, followed.Username), followerID)
	}
	return nil
}

// Unfollow removes the edge followerID -> followedID if present.
func (s *UserService) Unfollow(ctx context.Context, followerID, followedID int64) error {
	followed, err := s.GetUserByID(ctx, followedID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM follows WHERE follower_id = ? AND followed_id = ?", followerID, followedID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.recordEvent(ctx, "user.unfollow", fmt.Sprintf("User %d unfollowed '%s'.", followerID, followed.Username), followerID)
	}
	return nil
}

// IsFollowing reports whether userID follows otherID.
func (s *UserService) IsFollowing(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.edgeExists(ctx, userID, otherID)
}

// IsFollowedBy reports whether otherID follows userID.
func (s *UserService) IsFollowedBy(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.edgeExists(ctx, otherID, userID)
}

func (s *UserService) edgeExists(ctx context.Context, followerID, followedID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = ? AND followed_id = ?)",
		followerID, followedID).Scan(&exists)
	return exists, err
}

// Following lists the users that userID follows.
func (s *UserService) Following(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+joinedUserColumns+`
		FROM users u JOIN follows f ON f.followed_id = u.id
		WHERE f.follower_id = ?
		ORDER BY u.username`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Followers lists the users following userID.
func (s *UserService) Followers(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+joinedUserColumns+`
		FROM users u JOIN follows f ON f.follower_id = u.id
		WHERE f.followed_id = ?
		ORDER BY u.username`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *UserService) recordEvent(ctx context.Context, eventType, message string, userID int64) {
	if s.eventService == nil {
		return
	}
	var uid *int64
	if userID > 0 {
		uid = &userID
	}
	if err := s.eventService.CreateEvent(ctx, eventType, models.LevelInfo, message, uid); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}

func classifyUserWriteError(err error) error {
	if !database.IsUniqueViolation(err) {
		return err
	}
	switch database.UniqueColumn(err) {
	case "email":
		return fmt.Errorf("%w: %w", database.Integrity(err), ErrDuplicateEmail)
	default:
		return fmt.Errorf("%w: %w", database.Integrity(err), ErrDuplicateUsername)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
