package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpenAppliesMigrations(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "moodify.db")
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close(db)

	user := User{Email: "bob@x.com", PasswordHash: "hash", CreatedAt: time.Now()}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}

	window := RateLimitWindow{Key: "10.0.0.1", Count: 1, WindowStart: time.Now(), ExpiresAt: time.Now().Add(time.Minute)}
	if err := db.Create(&window).Error; err != nil {
		t.Fatalf("insert window: %v", err)
	}

	history, err := NewMigrationManager(db).GetMigrationHistory()
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Version != "001_initial" {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Re-running is a no-op.
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRollbackMigration(t *testing.T) {
	db, err := Open("file:rollback?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close(db)

	manager := NewMigrationManager(db)
	if err := manager.RollbackMigration("001_initial"); err == nil {
		t.Fatal("expected error for unregistered migration")
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if db.Migrator().HasTable("users") == false {
		t.Fatal("users table missing")
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}
