package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/persist"
)

// TrialLength is how long a freshly started premium trial lasts.
const TrialLength = time.Hour

var ErrTrialNotStarted = errors.New("trial not started")

type trialState struct {
	Started   bool      `json:"started"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Trial is the time-boxed premium trial.
type Trial struct {
	mu    sync.Mutex
	kv    persist.KV
	state trialState
}

func LoadTrial(ctx context.Context, kv persist.KV) (*Trial, error) {
	t := &Trial{kv: kv}
	if err := persist.LoadJSON(ctx, kv, keyTrial, &t.state); err != nil && !errors.Is(err, persist.ErrKeyNotFound) {
		return nil, fmt.Errorf("load trial: %w", err)
	}
	return t, nil
}

// Start begins (or restarts) the trial at now.
func (t *Trial) Start(ctx context.Context, now time.Time) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := trialState{Started: true, ExpiresAt: now.Add(TrialLength)}
	if err := t.saveLocked(ctx, next); err != nil {
		return time.Time{}, err
	}
	return next.ExpiresAt, nil
}

// Extend pushes the expiry out by whole hours. An expired trial is extended
// from now rather than from its old expiry.
func (t *Trial) Extend(ctx context.Context, hours int, now time.Time) (time.Time, error) {
	if hours <= 0 {
		return time.Time{}, fmt.Errorf("extend trial: hours must be positive, got %d", hours)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Started {
		return time.Time{}, ErrTrialNotStarted
	}
	base := t.state.ExpiresAt
	if base.Before(now) {
		base = now
	}
	next := trialState{Started: true, ExpiresAt: base.Add(time.Duration(hours) * time.Hour)}
	if err := t.saveLocked(ctx, next); err != nil {
		return time.Time{}, err
	}
	return next.ExpiresAt, nil
}

// Remaining is the time left, or 0 when the trial is over or never started.
func (t *Trial) Remaining(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Started {
		return 0
	}
	if d := t.state.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (t *Trial) Active(now time.Time) bool { return t.Remaining(now) > 0 }

// ExpiresAt returns the expiry and whether the trial was ever started.
func (t *Trial) ExpiresAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.ExpiresAt, t.state.Started
}

func (t *Trial) saveLocked(ctx context.Context, next trialState) error {
	if err := persist.SaveJSON(ctx, t.kv, keyTrial, next); err != nil {
		return fmt.Errorf("save trial: %w", err)
	}
	t.state = next
	return nil
}
