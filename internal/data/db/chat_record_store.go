package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ChatRecordStore persists chat audit records in SQLite using GORM.
type ChatRecordStore struct {
	db     *gorm.DB
	dbPath string
	mu     sync.Mutex
}

// ListOptions pages through records, newest first.
type ListOptions struct {
	Limit  int
	Offset int
	Status ChatStatus
}

// Stats aggregates every stored record.
type Stats struct {
	Total        int64                `json:"total"`
	ByStatus     map[ChatStatus]int64 `json:"by_status"`
	ToolCalls    map[string]int64     `json:"tool_calls"`
	ToolErrors   int64                `json:"tool_errors"`
	InputTokens  int64                `json:"input_tokens"`
	OutputTokens int64                `json:"output_tokens"`
	AvgDuration  float64              `json:"avg_duration_ms"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NewChatRecordStore opens or creates the database at dbPath.
func NewChatRecordStore(dbPath string) (*ChatRecordStore, error) {
	if dbPath == "" {
		return nil, errors.New("chat record database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create chat record directory: %w", err)
	}

	logrus.Debugf("Opening SQLite database for chat records: %s", dbPath)
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open chat record database: %w", err)
	}

	if err := db.AutoMigrate(&ChatRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat record database: %w", err)
	}

	return &ChatRecordStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file.
func (s *ChatRecordStore) Path() string {
	return s.dbPath
}

// Record saves a single record.
func (s *ChatRecordStore) Record(ctx context.Context, record *ChatRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// List returns one page of records and the total matching count.
func (s *ChatRecordStore) List(ctx context.Context, opts ListOptions) ([]ChatRecord, int64, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scoped := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&ChatRecord{})
		if opts.Status != "" {
			query = query.Where("status = ?", opts.Status)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []ChatRecord
	if err := scoped().
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Count returns the number of stored records.
func (s *ChatRecordStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	err := s.db.WithContext(ctx).Model(&ChatRecord{}).Count(&total).Error
	return total, err
}

// Stats aggregates outcomes, token estimates and tool usage.
func (s *ChatRecordStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ByStatus:  map[ChatStatus]int64{},
		ToolCalls: map[string]int64{},
	}
	var totals struct {
		Total        int64
		ToolErrors   int64
		InputTokens  int64
		OutputTokens int64
		AvgDuration  float64
	}
	if err := s.db.WithContext(ctx).Model(&ChatRecord{}).Select(
		"COUNT(*) AS total, COALESCE(SUM(tool_errors), 0) AS tool_errors, " +
			"COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, " +
			"COALESCE(AVG(duration_ms), 0) AS avg_duration",
	).Scan(&totals).Error; err != nil {
		return stats, err
	}
	stats.Total = totals.Total
	stats.ToolErrors = totals.ToolErrors
	stats.InputTokens = totals.InputTokens
	stats.OutputTokens = totals.OutputTokens
	stats.AvgDuration = totals.AvgDuration

	var byStatus []struct {
		Status ChatStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&ChatRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return stats, err
	}
	for _, row := range byStatus {
		stats.ByStatus[row.Status] = row.Count
	}

	var withTools []ChatRecord
	if err := s.db.WithContext(ctx).Model(&ChatRecord{}).
		Select("tool_calls").
		Where("tool_calls <> ''").
		Find(&withTools).Error; err != nil {
		return stats, err
	}
	for _, r := range withTools {
		for _, name := range r.ToolCallNames() {
			stats.ToolCalls[name]++
		}
	}

	return stats, nil
}

// DeleteOlderThan deletes records created before cutoff.
func (s *ChatRecordStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&ChatRecord{})
	return result.RowsAffected, result.Error
}

// Close closes the database connection
func (s *ChatRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
