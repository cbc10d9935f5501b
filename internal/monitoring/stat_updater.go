package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/isdelr/warbler/internal/models"
	"github.com/isdelr/warbler/internal/services"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Counts is a snapshot of the table sizes.
type Counts struct {
	Users    int64 `json:"users"`
	Messages int64 `json:"messages"`
	Follows  int64 `json:"follows"`
}

// HostInfo describes the machine the service runs on.
type HostInfo struct {
	MemoryTotal       uint64  `json:"memoryTotal"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent"`
	UptimeSeconds     uint64  `json:"uptimeSeconds"`
	CPUs              int     `json:"cpus"`
	Goroutines        int     `json:"goroutines"`
}

// HostStats samples host memory and uptime.
func HostStats(ctx context.Context) (HostInfo, error) {
	info := HostInfo{CPUs: runtime.NumCPU(), Goroutines: runtime.NumGoroutine()}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to read memory stats: %w", err)
	}
	info.MemoryTotal = vm.Total
	info.MemoryUsedPercent = vm.UsedPercent

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to read host uptime: %w", err)
	}
	info.UptimeSeconds = uptime
	return info, nil
}

// CountRows returns the number of users, messages and follow edges.
func CountRows(ctx context.Context, db *sql.DB) (Counts, error) {
	var c Counts
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM follows)`).Scan(&c.Users, &c.Messages, &c.Follows)
	return c, err
}

// StatUpdater periodically refreshes the gauges exposed on /metrics.
type StatUpdater struct {
	db        *sql.DB
	eventSvc  services.EventServiceProvider
	interval  time.Duration
	hostStats func(context.Context) (HostInfo, error)

	done      chan struct{}
	stopOnce  sync.Once
	lastAlert time.Time
}

// NewStatUpdater creates a new StatUpdater.
func NewStatUpdater(db *sql.DB, eventSvc services.EventServiceProvider, interval time.Duration) *StatUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatUpdater{
		db:        db,
		eventSvc:  eventSvc,
		interval:  interval,
		hostStats: HostStats,
		done:      make(chan struct{}),
	}
}

// Run starts the periodic updates.
func (su *StatUpdater) Run() {
	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	// Run once immediately on start
	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.update()
		}
	}
}

// Stop halts the periodic updates.
func (su *StatUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.done) })
}

func (su *StatUpdater) update() {
	ctx, cancel := context.WithTimeout(context.Background(), su.interval)
	defer cancel()

	counts, err := CountRows(ctx, su.db)
	if err != nil {
		log.Error().Err(err).Msg("StatUpdater: Failed to count rows")
	} else {
		UsersTotal.Set(float64(counts.Users))
		MessagesTotal.Set(float64(counts.Messages))
		FollowsTotal.Set(float64(counts.Follows))
	}

	info, err := su.hostStats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("StatUpdater: Non-fatal error getting host stats")
		return
	}
	HostMemoryUsed.Set(info.MemoryUsedPercent)
	su.checkAndAlertForHighMemory(ctx, info)
}

func (su *StatUpdater) checkAndAlertForHighMemory(ctx context.Context, info HostInfo) {
	const highMemoryThreshold = 90.0
	const alertCooldown = 15 * time.Minute

	if info.MemoryUsedPercent <= highMemoryThreshold {
		return
	}
	if !su.lastAlert.IsZero() && time.Since(su.lastAlert) < alertCooldown {
		return
	}
	msg := fmt.Sprintf("High memory usage (%.1f%%) detected on host.", info.MemoryUsedPercent)
	if err := su.eventSvc.CreateEvent(ctx, "system.alert.memory", models.LevelWarn, msg, nil); err != nil {
		log.Warn().Err(err).Msg("StatUpdater: Failed to record memory alert")
		return
	}
	su.lastAlert = time.Now()
}
