package migrations

import (
	"gorm.io/gorm"
)

// Migration001Initial creates the credential directory and rate limit tables.
type Migration001Initial struct{}

func (m *Migration001Initial) Version() string {
	return "001_initial"
}

func (m *Migration001Initial) Description() string {
	return "Create users and rate_limit_windows tables"
}

func (m *Migration001Initial) Up(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email VARCHAR(320) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS rate_limit_windows (
			"key" VARCHAR(255) PRIMARY KEY,
			count INTEGER NOT NULL,
			window_start DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_expires_at ON rate_limit_windows(expires_at)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001Initial) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS rate_limit_windows`).Error; err != nil {
		return err
	}
	return db.Exec(`DROP TABLE IF EXISTS users`).Error
}
