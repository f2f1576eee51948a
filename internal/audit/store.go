// Package audit persists a record of every bind attempt and its
// authorization outcome.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record stores the outcome of a single bind attempt.
type Record struct {
	ID          string `gorm:"primaryKey;size:36"`
	CommandName string `gorm:"size:128;index"`
	Path        string `gorm:"size:255"`
	Allowed     bool
	Reason      string `gorm:"size:64"`
	// PayloadHash is the hex form of the payload's xxhash fingerprint. Empty
	// when the payload never decoded.
	PayloadHash  string `gorm:"size:16"`
	IdentityName string `gorm:"size:128"`
	RemoteAddr   string `gorm:"size:64"`
	CreatedAt    time.Time `gorm:"index"`
}

// TableName implements the GORM table naming convention override.
func (Record) TableName() string {
	return "cmdbind_audit_records"
}

// FormatFingerprint renders a payload fingerprint for storage. Zero means no
// payload was decoded and maps to the empty string.
func FormatFingerprint(fingerprint uint64) string {
	if fingerprint == 0 {
		return ""
	}
	return strconv.FormatUint(fingerprint, 16)
}

// Store writes audit records to a GORM-managed table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store and migrates its schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("audit store requires a database handle")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Write persists a record. Missing ID and timestamp are filled in.
func (s *Store) Write(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	return records, nil
}

// ByCommand returns the most recent records for one command, newest first.
func (s *Store) ByCommand(ctx context.Context, commandName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := s.db.WithContext(ctx).
		Where("command_name = ?", commandName).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	return records, nil
}

// DeniedCount returns the number of denied attempts since the given time.
func (s *Store) DeniedCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("allowed = ? AND created_at >= ?", false, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count denied attempts: %w", err)
	}
	return count, nil
}
