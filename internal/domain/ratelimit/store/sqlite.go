package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moodify-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLite builds a window store over the rate_limit_windows table.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		now: clock(cfg),
	}, nil
}

func (s *sqliteStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	if key == "" {
		return Window{}, fmt.Errorf("rate limit key required")
	}
	now := s.now().UTC()

	var record storage.RateLimitWindow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The UPDATE takes the write lock first so the read below sees a settled row.
		res := tx.Model(&storage.RateLimitWindow{}).
			Where("`key` = ? AND expires_at > ?", key, now).
			UpdateColumn("count", gorm.Expr("`count` + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			fresh := storage.RateLimitWindow{
				Key:         key,
				Count:       1,
				WindowStart: now,
				ExpiresAt:   now.Add(window),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"count", "window_start", "expires_at"}),
			}).Create(&fresh).Error; err != nil {
				return err
			}
		}
		return tx.Where("`key` = ?", key).First(&record).Error
	})
	if err != nil {
		return Window{}, fmt.Errorf("sqlite increment: %w", err)
	}
	return toWindow(record), nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (Window, bool, error) {
	var record storage.RateLimitWindow
	err := s.db.WithContext(ctx).
		Where("`key` = ? AND expires_at > ?", key, s.now().UTC()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}
	return toWindow(record), true, nil
}

func (s *sqliteStore) Reset(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&storage.RateLimitWindow{}).Error
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&storage.RateLimitWindow{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, active int64
	if err := s.db.WithContext(ctx).Model(&storage.RateLimitWindow{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&storage.RateLimitWindow{}).
		Where("expires_at > ?", s.now().UTC()).Count(&active).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   "sqlite",
		"total":  total,
		"active": active,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func toWindow(record storage.RateLimitWindow) Window {
	return Window{
		Key:       record.Key,
		Count:     record.Count,
		Start:     record.WindowStart,
		ExpiresAt: record.ExpiresAt,
	}
}
