package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedScorer remembers scores per exact text for a while, so re-checking
// an unchanged document does not hit the network again. Failures are not
// cached.
type CachedScorer struct {
	next  Scorer
	cache *cache.Cache
}

// NewCachedScorer wraps next. A ttl <= 0 keeps entries for an hour.
func NewCachedScorer(next Scorer, ttl time.Duration) *CachedScorer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedScorer{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedScorer) Score(ctx context.Context, text string) (int, error) {
	key := cacheKey(text)
	if v, found := c.cache.Get(key); found {
		return v.(int), nil
	}
	score, err := c.next.Score(ctx, text)
	if err != nil {
		return 0, err
	}
	c.cache.Set(key, score, cache.DefaultExpiration)
	return score, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
