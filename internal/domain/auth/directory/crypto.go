package directory

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// maxSecretBytes is the longest secret bcrypt hashes without truncation.
const maxSecretBytes = 72

type hasher struct {
	cost      int
	dummyOnce sync.Once
	dummy     []byte
	dummyErr  error
}

func newHasher(cost int) *hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &hasher{cost: cost}
}

func (h *hasher) hash(secret string) (string, error) {
	if len(secret) > maxSecretBytes {
		return "", fmt.Errorf("secret exceeds %d bytes", maxSecretBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// compare checks secret against hash. An empty hash is compared against a
// dummy hash of the same cost and always fails.
func (h *hasher) compare(hash, secret string) (bool, error) {
	target := []byte(hash)
	if hash == "" {
		dummy, err := h.dummyHash()
		if err != nil {
			return false, err
		}
		target = dummy
	}
	err := bcrypt.CompareHashAndPassword(target, []byte(secret))
	if hash == "" || len(secret) > maxSecretBytes {
		return false, nil
	}
	switch err {
	case nil:
		return true, nil
	case bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, fmt.Errorf("compare secret: %w", err)
	}
}

func (h *hasher) dummyHash() ([]byte, error) {
	h.dummyOnce.Do(func() {
		h.dummy, h.dummyErr = bcrypt.GenerateFromPassword([]byte("moodify-directory-miss"), h.cost)
	})
	return h.dummy, h.dummyErr
}
