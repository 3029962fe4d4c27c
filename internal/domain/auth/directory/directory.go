package directory

import (
	"context"
	"fmt"
	"strings"

	"moodify-server-go/internal/domain/auth/model"
)

// Directory maps identities to bcrypt hashes of their secrets.
type Directory interface {
	// Verify reports whether secret matches identity. Unknown identities cost
	// the same as mismatches.
	Verify(ctx context.Context, identity, secret string) (bool, error)
	Put(ctx context.Context, identity, secret string) error
	Remove(ctx context.Context, identity string) error
	List(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the directory selection parameters.
type Config struct {
	Driver string
	// Users seeds the directory on construction.
	Users []model.Credentials
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// ParseUsers parses "email:password" pairs separated by commas.
func ParseUsers(raw string) ([]model.Credentials, error) {
	var users []model.Credentials
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		identity, secret, ok := strings.Cut(entry, ":")
		identity = strings.TrimSpace(identity)
		if !ok || identity == "" || secret == "" {
			return nil, fmt.Errorf("invalid user entry %q, expected email:password", entry)
		}
		users = append(users, model.Credentials{Identity: identity, Secret: secret})
	}
	return users, nil
}
