package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/persist"
	"github.com/google/uuid"
)

const (
	StatusActive  = "Active"
	StatusRevoked = "Revoked"

	keyLicenses = "licenses"
	keyIssued   = "issued_licenses"
	keyTrial    = "trial"
)

var (
	ErrEmptyKey     = errors.New("license key is empty")
	ErrDuplicateKey = errors.New("license key already redeemed")
	ErrUnknownKey   = errors.New("license key not found")
)

// License is one redeemed or generated key.
type License struct {
	Key       string     `json:"key"`
	Status    string     `json:"status"`
	AddedAt   time.Time  `json:"added_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the license is active and not past its expiry.
func (l License) Usable(now time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// Licenses is the persisted key list plus the expiries of generated keys
// that were not redeemed yet.
type Licenses struct {
	mu     sync.Mutex
	kv     persist.KV
	list   []License
	issued map[string]time.Time
}

// LoadLicenses reads the key list. A missing list is empty.
func LoadLicenses(ctx context.Context, kv persist.KV) (*Licenses, error) {
	l := &Licenses{kv: kv, issued: map[string]time.Time{}}
	if err := persist.LoadJSON(ctx, kv, keyLicenses, &l.list); err != nil && !errors.Is(err, persist.ErrKeyNotFound) {
		return nil, fmt.Errorf("load licenses: %w", err)
	}
	if err := persist.LoadJSON(ctx, kv, keyIssued, &l.issued); err != nil && !errors.Is(err, persist.ErrKeyNotFound) {
		return nil, fmt.Errorf("load issued licenses: %w", err)
	}
	return l, nil
}

// Generate creates a fresh key that expires one month after now. The key is
// not active until redeemed; its expiry is remembered so redeeming it later
// keeps the original term.
func (l *Licenses) Generate(ctx context.Context, now time.Time) (License, error) {
	exp := now.AddDate(0, 1, 0)
	lic := License{Key: uuid.NewString(), Status: StatusActive, AddedAt: now, ExpiresAt: &exp}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued[lic.Key] = exp
	if err := persist.SaveJSON(ctx, l.kv, keyIssued, l.issued); err != nil {
		delete(l.issued, lic.Key)
		return License{}, fmt.Errorf("save issued licenses: %w", err)
	}
	return lic, nil
}

// Redeem stores key as an active license. Keys made by Generate expire when
// their generated term ends; other keys never expire.
func (l *Licenses) Redeem(ctx context.Context, key string, now time.Time) (License, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return License{}, ErrEmptyKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.list {
		if existing.Key == key {
			return License{}, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
	}
	lic := License{Key: key, Status: StatusActive, AddedAt: now}
	if exp, ok := l.issued[key]; ok {
		lic.ExpiresAt = &exp
	}
	l.list = append(l.list, lic)
	if err := l.saveLocked(ctx); err != nil {
		l.list = l.list[:len(l.list)-1]
		return License{}, err
	}
	return lic, nil
}

// Revoke marks key as revoked.
func (l *Licenses) Revoke(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.list {
		if l.list[i].Key == key {
			prev := l.list[i].Status
			l.list[i].Status = StatusRevoked
			if err := l.saveLocked(ctx); err != nil {
				l.list[i].Status = prev
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// List returns a copy of the keys in redemption order.
func (l *Licenses) List() []License {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]License, len(l.list))
	copy(out, l.list)
	return out
}

// AnyUsable reports whether at least one license is usable at now.
func (l *Licenses) AnyUsable(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lic := range l.list {
		if lic.Usable(now) {
			return true
		}
	}
	return false
}

func (l *Licenses) saveLocked(ctx context.Context) error {
	if err := persist.SaveJSON(ctx, l.kv, keyLicenses, l.list); err != nil {
		return fmt.Errorf("save licenses: %w", err)
	}
	return nil
}
