package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/warbler/internal/models"
	"github.com/rs/zerolog/log"
)

var ErrBackupNotFound = errors.New("backup not found")

// BackupServiceProvider defines the interface for backup services.
type BackupServiceProvider interface {
	CreateBackup(ctx context.Context, name string) (models.Backup, error)
	GetBackups(ctx context.Context) ([]models.Backup, error)
	GetBackupByID(ctx context.Context, backupID string) (models.Backup, error)
	DeleteBackup(ctx context.Context, backupID string) error
	PruneBackups(ctx context.Context, keep int) (int, error)
}

// BackupService snapshots the live database into backupPath.
type BackupService struct {
	db           *sql.DB
	eventService EventServiceProvider
	backupPath   string
}

// NewBackupService creates a new BackupService.
func NewBackupService(db *sql.DB, eventService EventServiceProvider, backupPath string) *BackupService {
	return &BackupService{db: db, eventService: eventService, backupPath: backupPath}
}

// CreateBackup writes a consistent copy of the database with VACUUM INTO.
func (s *BackupService) CreateBackup(ctx context.Context, name string) (models.Backup, error) {
	if err := os.MkdirAll(s.backupPath, 0755); err != nil {
		return models.Backup{}, fmt.Errorf("could not create backup directory: %w", err)
	}
	if strings.TrimSpace(name) == "" {
		name = "Scheduled Backup"
	}

	backup := models.Backup{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	backupFileName := fmt.Sprintf("warbler_%s_%s.db", backup.CreatedAt.Format("20060102150405"), backup.ID[:8])
	backup.Path = filepath.Join(s.backupPath, backupFileName)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backup.Path); err != nil {
		os.Remove(backup.Path) // Clean up partial file
		return models.Backup{}, fmt.Errorf("failed to snapshot database: %w", err)
	}

	fi, err := os.Stat(backup.Path)
	if err != nil {
		return models.Backup{}, fmt.Errorf("could not get backup file info: %w", err)
	}
	backup.Size = fi.Size()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO backups (id, name, path, size, created_at) VALUES (?, ?, ?, ?, ?)",
		backup.ID, backup.Name, backup.Path, backup.Size, backup.CreatedAt)
	if err != nil {
		os.Remove(backup.Path)
		return models.Backup{}, err
	}

	s.recordEvent(ctx, "backup.create", models.LevelInfo, fmt.Sprintf("Backup '%s' created (%d bytes).", backup.Name, backup.Size))
	return backup, nil
}

// GetBackups lists backups, newest first.
func (s *BackupService) GetBackups(ctx context.Context) ([]models.Backup, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, path, size, created_at FROM backups ORDER BY created_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backups := []models.Backup{}
	for rows.Next() {
		var backup models.Backup
		if err := rows.Scan(&backup.ID, &backup.Name, &backup.Path, &backup.Size, &backup.CreatedAt); err != nil {
			return nil, err
		}
		backups = append(backups, backup)
	}
	return backups, rows.Err()
}

// GetBackupByID retrieves a single backup by its ID.
func (s *BackupService) GetBackupByID(ctx context.Context, backupID string) (models.Backup, error) {
	var backup models.Backup
	row := s.db.QueryRowContext(ctx, "SELECT id, name, path, size, created_at FROM backups WHERE id = ?", backupID)
	err := row.Scan(&backup.ID, &backup.Name, &backup.Path, &backup.Size, &backup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Backup{}, fmt.Errorf("backup with id %s: %w", backupID, ErrBackupNotFound)
		}
		return models.Backup{}, err
	}
	return backup, nil
}

// DeleteBackup deletes a backup from the filesystem and database.
func (s *BackupService) DeleteBackup(ctx context.Context, backupID string) error {
	backup, err := s.GetBackupByID(ctx, backupID)
	if err != nil {
		return err
	}

	if err := os.Remove(backup.Path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", backup.Path).Msg("Could not delete backup file")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM backups WHERE id = ?", backupID); err != nil {
		return err
	}
	s.recordEvent(ctx, "backup.delete", models.LevelWarn, fmt.Sprintf("Backup '%s' was deleted.", backup.Name))
	return nil
}

// PruneBackups deletes all but the newest keep backups.
func (s *BackupService) PruneBackups(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := s.GetBackups(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(backups); i++ {
		if err := s.DeleteBackup(ctx, backups[i].ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *BackupService) recordEvent(ctx context.Context, eventType, level, message string) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(ctx, eventType, level, message, nil); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}
