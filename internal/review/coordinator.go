package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/detector"
	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"go.uber.org/zap"
)

// DefaultThreshold is the score at which a result is flagged as likely
// AI-generated.
const DefaultThreshold = 80

// SelectionName is the review entry name used for scored selections.
const SelectionName = "Selected Text"

// ErrSuperseded marks an outcome dropped because a newer request for the
// same document was issued while it was in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// Entry is one row of the review panel. Entries are keyed by Name.
type Entry struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Score     int       `json:"score"`
	High      bool      `json:"high"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome reports how one scoring request ended.
type Outcome struct {
	DocID string `json:"doc_id,omitempty"`
	Name  string `json:"name"`
	Score int    `json:"score"`
	High  bool   `json:"high"`
	Err   error  `json:"-"`
}

// Coordinator sends documents to the scorer and applies the answers to the
// document that was captured when the request was made.
type Coordinator struct {
	store     *session.Store
	scorer    detector.Scorer
	logger    *zap.Logger
	threshold int
	now       func() time.Time

	mu      sync.Mutex
	tickets map[string]uint64
	entries []Entry

	wg sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithThreshold sets the high-likelihood threshold. Values outside [0,100]
// are ignored.
func WithThreshold(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 && n <= 100 {
			c.threshold = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func New(store *session.Store, scorer detector.Scorer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		scorer:    scorer,
		logger:    zap.NewNop(),
		threshold: DefaultThreshold,
		now:       time.Now,
		tickets:   make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Threshold returns the high-likelihood threshold in use.
func (c *Coordinator) Threshold() int { return c.threshold }

// Request scores the document's current content in the background. The
// returned channel receives exactly one Outcome. Only an unknown id fails
// synchronously.
func (c *Coordinator) Request(ctx context.Context, docID string) (<-chan Outcome, error) {
	doc, err := c.store.Get(docID)
	if err != nil {
		return nil, err
	}
	return c.start(ctx, "doc:"+doc.ID, doc.ID, doc.Title, doc.Content), nil
}

// RequestText scores arbitrary text into the review panel only.
func (c *Coordinator) RequestText(ctx context.Context, name, text string) <-chan Outcome {
	if name == "" {
		name = SelectionName
	}
	return c.start(ctx, "text:"+name, "", name, text)
}

func (c *Coordinator) start(ctx context.Context, key, docID, name, text string) <-chan Outcome {
	c.mu.Lock()
	c.tickets[key]++
	ticket := c.tickets[key]
	c.mu.Unlock()

	out := make(chan Outcome, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		out <- c.run(ctx, key, ticket, docID, name, text)
		close(out)
	}()
	return out
}

func (c *Coordinator) run(ctx context.Context, key string, ticket uint64, docID, name, text string) Outcome {
	res := Outcome{DocID: docID, Name: name}
	score, err := c.scorer.Score(ctx, text)
	if err != nil {
		c.logger.Warn("score request failed", zap.String("doc_id", docID), zap.String("name", name), zap.Error(err))
		res.Err = err
		return res
	}
	score = session.ClampScore(score)
	res.Score = score
	res.High = score >= c.threshold

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickets[key] != ticket {
		c.logger.Debug("dropping superseded score", zap.String("name", name), zap.Uint64("ticket", ticket))
		res.Err = ErrSuperseded
		return res
	}
	if docID != "" {
		if _, err := c.store.RecordScore(docID, score); err != nil {
			// closed while the request was in flight
			c.logger.Info("document gone before score arrived", zap.String("doc_id", docID))
			res.Err = err
			return res
		}
	}
	c.upsertLocked(Entry{Name: name, Content: text, Score: score, High: res.High, UpdatedAt: c.now()})
	if res.High {
		c.logger.Info("high AI likelihood", zap.String("name", name), zap.Int("score", score))
	}
	return res
}

func (c *Coordinator) upsertLocked(e Entry) {
	for i := range c.entries {
		if c.entries[i].Name == e.Name {
			c.entries[i] = e
			return
		}
	}
	c.entries = append(c.entries, e)
}

// Entries returns a copy of the review panel in insertion order.
func (c *Coordinator) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Wait blocks until every in-flight request has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }
