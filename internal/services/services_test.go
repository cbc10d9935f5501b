package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/models"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "warbler-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

type testEnv struct {
	db        *sql.DB
	events    *EventService
	users     *UserService
	messages  *MessageService
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	events := NewEventService(db)
	publisher := &recordingPublisher{}
	return &testEnv{
		db:        db,
		events:    events,
		users:     NewUserService(db, events),
		messages:  NewMessageService(db, events, publisher),
		publisher: publisher,
	}
}

func (e *testEnv) signup(t *testing.T, username, email string) models.User {
	t.Helper()
	u, err := e.users.Signup(username, email, "testtest", "/test/url")
	require.NoError(t, err)
	require.NoError(t, e.users.CreateUser(context.Background(), &u))
	return u
}
