package license

import (
	"context"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/persist"
)

// Entitlements bundles the key list and the trial.
type Entitlements struct {
	Licenses *Licenses
	Trial    *Trial
}

func Load(ctx context.Context, kv persist.KV) (*Entitlements, error) {
	lics, err := LoadLicenses(ctx, kv)
	if err != nil {
		return nil, err
	}
	trial, err := LoadTrial(ctx, kv)
	if err != nil {
		return nil, err
	}
	return &Entitlements{Licenses: lics, Trial: trial}, nil
}

// PremiumAllowed reports whether PREMIUM obfuscation may run at now.
func (e *Entitlements) PremiumAllowed(now time.Time) bool {
	return e.Trial.Active(now) || e.Licenses.AnyUsable(now)
}
