package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moodify-server-go/internal/platform/storage"
)

type sqliteDirectory struct {
	db     *gorm.DB
	hasher *hasher
}

// NewSQLite builds a directory over the users table.
func NewSQLite(db *gorm.DB, cfg Config) (Directory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite directory requires database handle")
	}
	d := &sqliteDirectory{
		db:     db,
		hasher: newHasher(cfg.Cost),
	}
	for _, user := range cfg.Users {
		if err := d.Put(context.Background(), user.Identity, user.Secret); err != nil {
			return nil, err
		}
	}
	if _, err := d.hasher.dummyHash(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *sqliteDirectory) Verify(ctx context.Context, identity, secret string) (bool, error) {
	var user storage.User
	err := d.db.WithContext(ctx).Select("password_hash").Where("email = ?", identity).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return d.hasher.compare(user.PasswordHash, secret)
}

// Put inserts identity or replaces its hash.
func (d *sqliteDirectory) Put(ctx context.Context, identity, secret string) error {
	if identity == "" {
		return fmt.Errorf("identity required")
	}
	hash, err := d.hasher.hash(secret)
	if err != nil {
		return err
	}
	now := time.Now()
	user := storage.User{
		Email:        identity,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "updated_at"}),
	}).Create(&user).Error
}

func (d *sqliteDirectory) Remove(ctx context.Context, identity string) error {
	return d.db.WithContext(ctx).Where("email = ?", identity).Delete(&storage.User{}).Error
}

func (d *sqliteDirectory) List(ctx context.Context) ([]string, error) {
	var emails []string
	if err := d.db.WithContext(ctx).Model(&storage.User{}).Order("email").Pluck("email", &emails).Error; err != nil {
		return nil, err
	}
	return emails, nil
}

func (d *sqliteDirectory) Stats(ctx context.Context) (map[string]any, error) {
	var total int64
	if err := d.db.WithContext(ctx).Model(&storage.User{}).Count(&total).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "sqlite",
		"total": total,
		"cost":  d.hasher.cost,
	}, nil
}

func (d *sqliteDirectory) Close(context.Context) error {
	return nil
}
