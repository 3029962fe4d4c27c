package storage

import "time"

// User is a credential directory entry. Only the bcrypt hash of the secret is stored.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}

// RateLimitWindow holds the attempt counter of one client key for the current window.
type RateLimitWindow struct {
	Key         string    `gorm:"primaryKey"`
	Count       int       `gorm:"not null"`
	WindowStart time.Time `gorm:"not null"`
	ExpiresAt   time.Time `gorm:"index;not null"`
}

func (RateLimitWindow) TableName() string {
	return "rate_limit_windows"
}
