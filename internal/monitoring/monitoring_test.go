package monitoring

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/warbler/internal/database"
	"github.com/isdelr/warbler/internal/models"
	"github.com/isdelr/warbler/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "monitoring-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// gaugeValue reads a registered gauge from the default registry.
func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestSchedulerPrunesOldEvents(t *testing.T) {
	ctx := context.Background()
	events := services.NewEventService(newTestDB(t))
	require.NoError(t, events.CreateEvent(ctx, "user.signup", models.LevelInfo, "old", nil))

	s, err := NewScheduler(events, 24*time.Hour, "@daily")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	s.pruneEvents()

	recent, err := events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "system.prune", recent[0].Type)
}

func TestSchedulerKeepsRecentEvents(t *testing.T) {
	ctx := context.Background()
	events := services.NewEventService(newTestDB(t))
	require.NoError(t, events.CreateEvent(ctx, "user.signup", models.LevelInfo, "fresh", nil))

	s, err := NewScheduler(events, 24*time.Hour, "@daily")
	require.NoError(t, err)
	s.pruneEvents()

	recent, err := events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "user.signup", recent[0].Type)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	events := services.NewEventService(newTestDB(t))
	_, err := NewScheduler(events, time.Hour, "not a cron spec")
	assert.Error(t, err)

	s, err := NewScheduler(events, time.Hour, "@hourly")
	require.NoError(t, err)
	assert.Error(t, s.Every("every now and then", "noop", func() {}))
	assert.NoError(t, s.Every("@every 1m", "noop", func() {}))
}

func TestSchedulerRunStops(t *testing.T) {
	s, err := NewScheduler(services.NewEventService(newTestDB(t)), time.Hour, "@daily")
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		s.Run()
		close(finished)
	}()
	s.Stop()
	s.Stop()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStatUpdaterSetsGaugesAndAlertsOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	events := services.NewEventService(db)
	users := services.NewUserService(db, events)
	_, err := users.Register(ctx, "wren", "wren@example.com", "secret", "")
	require.NoError(t, err)
	_, err = users.Register(ctx, "robin", "robin@example.com", "secret", "")
	require.NoError(t, err)

	su := NewStatUpdater(db, events, time.Second)
	su.hostStats = func(context.Context) (HostInfo, error) {
		return HostInfo{MemoryTotal: 1 << 30, MemoryUsedPercent: 95}, nil
	}
	su.update()
	su.update()

	assert.Equal(t, float64(2), gaugeValue(t, "warbler_users"))
	assert.Equal(t, float64(0), gaugeValue(t, "warbler_messages"))
	assert.Equal(t, float64(95), gaugeValue(t, "host_memory_used_percent"))

	recent, err := events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	alerts := 0
	for _, e := range recent {
		if e.Type == "system.alert.memory" {
			alerts++
			assert.Equal(t, models.LevelWarn, e.Level)
		}
	}
	assert.Equal(t, 1, alerts, "the cooldown suppresses repeated alerts")
}

func TestCountRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	events := services.NewEventService(db)
	users := services.NewUserService(db, events)
	messages := services.NewMessageService(db, events, nil)

	a, err := users.Register(ctx, "wren", "wren@example.com", "secret", "")
	require.NoError(t, err)
	b, err := users.Register(ctx, "robin", "robin@example.com", "secret", "")
	require.NoError(t, err)
	require.NoError(t, users.Follow(ctx, a.ID, b.ID))
	_, err = messages.CreateMessage(ctx, a.ID, "hello")
	require.NoError(t, err)

	counts, err := CountRows(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, Counts{Users: 2, Messages: 1, Follows: 1}, counts)
}

func TestInstrumentHandlerLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/probe/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, path := range []string{"/probe/1", "/probe/2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var count uint64
	for _, mf := range families {
		if mf.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/probe/{id}" && labels["status"] == "418" {
				count = m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(2), count)
}

func TestScheduledBackupsKeepNewest(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	events := services.NewEventService(db)
	backups := services.NewBackupService(db, events, t.TempDir())

	s, err := NewScheduler(events, time.Hour, "@daily")
	require.NoError(t, err)
	assert.Error(t, s.ScheduleBackups("whenever", backups, 1))
	require.NoError(t, s.ScheduleBackups("@weekly", backups, 1))

	for i := 0; i < 2; i++ {
		for _, entry := range s.cron.Entries() {
			entry.Job.Run()
		}
	}

	remaining, err := backups.GetBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
