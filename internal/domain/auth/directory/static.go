package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// staticDirectory keeps a fixed set of accounts in memory.
type staticDirectory struct {
	hashes map[string]string
	mutex  sync.RWMutex
	hasher *hasher
}

// NewStatic builds an in-memory directory seeded with cfg.Users.
func NewStatic(cfg Config) (Directory, error) {
	d := &staticDirectory{
		hashes: make(map[string]string, len(cfg.Users)),
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

func (d *staticDirectory) Verify(_ context.Context, identity, secret string) (bool, error) {
	d.mutex.RLock()
	hash := d.hashes[identity]
	d.mutex.RUnlock()
	return d.hasher.compare(hash, secret)
}

func (d *staticDirectory) Put(_ context.Context, identity, secret string) error {
	if identity == "" {
		return fmt.Errorf("identity required")
	}
	hash, err := d.hasher.hash(secret)
	if err != nil {
		return err
	}
	d.mutex.Lock()
	d.hashes[identity] = hash
	d.mutex.Unlock()
	return nil
}

func (d *staticDirectory) Remove(_ context.Context, identity string) error {
	d.mutex.Lock()
	delete(d.hashes, identity)
	d.mutex.Unlock()
	return nil
}

func (d *staticDirectory) List(_ context.Context) ([]string, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.hashes))
	for id := range d.hashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *staticDirectory) Stats(_ context.Context) (map[string]any, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return map[string]any{
		"type":  "static",
		"total": len(d.hashes),
		"cost":  d.hasher.cost,
	}, nil
}

func (d *staticDirectory) Close(context.Context) error {
	return nil
}
