package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/isdelr/warbler/internal/models"
	ws "github.com/isdelr/warbler/internal/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidMessage  = errors.New("message text must be between 1 and 140 characters")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotOwner        = errors.New("message belongs to another user")
)

// Publisher pushes payloads to live-feed subscribers of a topic.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// MessageServiceProvider defines the interface for message services.
type MessageServiceProvider interface {
	CreateMessage(ctx context.Context, userID int64, text string) (models.Message, error)
	GetMessage(ctx context.Context, id int64) (models.Message, error)
	MessagesByUser(ctx context.Context, userID int64, limit int) ([]models.Message, error)
	Timeline(ctx context.Context, userID int64, limit int) ([]models.Message, error)
	PublicTimeline(ctx context.Context, limit int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, id, userID int64) error
}

// MessageService provides business logic for messages.
type MessageService struct {
	db           *sql.DB
	eventService EventServiceProvider
	publisher    Publisher
}

// NewMessageService creates a new MessageService. publisher may be nil.
func NewMessageService(db *sql.DB, eventService EventServiceProvider, publisher Publisher) *MessageService {
	return &MessageService{db: db, eventService: eventService, publisher: publisher}
}

// messageSelect joins the author's public columns; email and password stay out.
const messageSelect = `
	SELECT m.id, m.text, m.timestamp, m.user_id,
		u.id, u.username, COALESCE(u.image_url, ''), COALESCE(u.header_image_url, ''),
		COALESCE(u.bio, ''), COALESCE(u.location, ''), u.created_at
	FROM messages m JOIN users u ON u.id = m.user_id`

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var u models.User
	if err := row.Scan(&m.ID, &m.Text, &m.Timestamp, &m.UserID,
		&u.ID, &u.Username, &u.ImageURL, &u.HeaderImageURL, &u.Bio, &u.Location, &u.CreatedAt); err != nil {
		return models.Message{}, err
	}
	m.User = &u
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateMessage stores a message for userID stamped with the current time.
func (s *MessageService) CreateMessage(ctx context.Context, userID int64, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > models.MaxMessageLength {
		return models.Message{}, ErrInvalidMessage
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (text, timestamp, user_id) VALUES (?, ?, ?)",
		text, time.Now().UTC(), userID)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Message{}, err
	}

	message, err := s.GetMessage(ctx, id)
	if err != nil {
		return models.Message{}, err
	}

	if s.eventService != nil {
		if err := s.eventService.CreateEvent(ctx, "message.create", models.LevelInfo,
			fmt.Sprintf("User '%s' posted message %d.", message.User.Username, id), &userID); err != nil {
			log.Warn().Err(err).Int64("message_id", id).Msg("Failed to record event")
		}
	}
	s.publish(message)
	return message, nil
}

// GetMessage retrieves a message together with its author.
func (s *MessageService) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	message, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
		}
		return models.Message{}, err
	}
	return message, nil
}

// MessagesByUser lists a user's messages, newest first.
func (s *MessageService) MessagesByUser(ctx context.Context, userID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		messageSelect+" WHERE m.user_id = ? ORDER BY m.timestamp DESC, m.id DESC LIMIT ?", userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Timeline lists messages by userID and by everyone userID follows, newest first.
func (s *MessageService) Timeline(ctx context.Context, userID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+`
		WHERE m.user_id = ?
			OR m.user_id IN (SELECT followed_id FROM follows WHERE follower_id = ?)
		ORDER BY m.timestamp DESC, m.id DESC LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// PublicTimeline lists the latest messages from everyone.
func (s *MessageService) PublicTimeline(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+" ORDER BY m.timestamp DESC, m.id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// DeleteMessage removes a message owned by userID.
func (s *MessageService) DeleteMessage(ctx context.Context, id, userID int64) error {
	message, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if message.UserID != userID {
		return ErrNotOwner
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return err
	}
	if s.eventService != nil {
		if err := s.eventService.CreateEvent(ctx, "message.delete", models.LevelInfo,
			fmt.Sprintf("User '%s' deleted message %d.", message.User.Username, id), &userID); err != nil {
			log.Warn().Err(err).Int64("message_id", id).Msg("Failed to record event")
		}
	}
	return nil
}

// FeedTopic is the live-feed topic carrying one author's messages.
func FeedTopic(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// GlobalFeedTopic carries every new message.
const GlobalFeedTopic = "global"

func (s *MessageService) publish(message models.Message) {
	if s.publisher == nil {
		return
	}
	payload, err := ws.Encode("message.created", message)
	if err != nil {
		log.Error().Err(err).Int64("message_id", message.ID).Msg("Failed to encode feed message")
		return
	}
	s.publisher.Publish(GlobalFeedTopic, payload)
	s.publisher.Publish(FeedTopic(message.UserID), payload)
}
