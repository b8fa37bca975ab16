package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/license"
	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/KaramelBytes/veiltext-cli/internal/parser"
	"github.com/KaramelBytes/veiltext-cli/internal/review"
	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"github.com/KaramelBytes/veiltext-cli/internal/textops"
	"go.uber.org/zap"
)

// ErrPremiumLocked is returned when PREMIUM mode is requested without an
// active trial or license.
var ErrPremiumLocked = errors.New("premium mode requires an active trial or license")

// Workspace is the editor's application service. The CLI and the HTTP API
// both drive it.
type Workspace struct {
	Store   *session.Store
	Engine  *obfuscate.Engine
	Review  *review.Coordinator
	Entitle *license.Entitlements

	logger *zap.Logger
	now    func() time.Time

	engineMu sync.Mutex
}

type Option func(*Workspace)

func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(w *Workspace) { w.now = now } }

// New wires the components. ent may be nil, in which case PREMIUM is never
// allowed.
func New(store *session.Store, engine *obfuscate.Engine, coord *review.Coordinator, ent *license.Entitlements, opts ...Option) *Workspace {
	w := &Workspace{
		Store:   store,
		Engine:  engine,
		Review:  coord,
		Entitle: ent,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// AntiDetectResult is the document after obfuscation plus the statistics.
type AntiDetectResult struct {
	Document session.Document `json:"document"`
	Stats    obfuscate.Result `json:"stats"`
}

// AntiDetect obfuscates the document's content in place. The previous
// score is left as it was; callers re-score when they want a fresh one.
func (w *Workspace) AntiDetect(id string, mode obfuscate.Mode) (AntiDetectResult, error) {
	if mode == obfuscate.Premium && !w.PremiumAllowed() {
		return AntiDetectResult{}, ErrPremiumLocked
	}
	doc, err := w.Store.Get(id)
	if err != nil {
		return AntiDetectResult{}, err
	}
	w.engineMu.Lock()
	res := w.Engine.Obfuscate(doc.Content, mode)
	w.engineMu.Unlock()
	updated, err := w.Store.UpdateContent(id, res.Output)
	if err != nil {
		return AntiDetectResult{}, err
	}
	w.logger.Info("obfuscated document",
		zap.String("doc_id", id),
		zap.Stringer("mode", mode),
		zap.Int("inserted", res.Inserted),
		zap.Int("length", res.OutputLength))
	return AntiDetectResult{Document: updated, Stats: res}, nil
}

// PremiumAllowed reports whether PREMIUM mode may run now.
func (w *Workspace) PremiumAllowed() bool {
	return w.Entitle != nil && w.Entitle.PremiumAllowed(w.now())
}

// Strip removes every mark from the document and returns how many went.
func (w *Workspace) Strip(id string) (session.Document, int, error) {
	doc, err := w.Store.Get(id)
	if err != nil {
		return session.Document{}, 0, err
	}
	removed := obfuscate.CountMarks(doc.Content, obfuscate.Standard) + obfuscate.CountMarks(doc.Content, obfuscate.Premium)
	if removed == 0 {
		return doc, 0, nil
	}
	updated, err := w.Store.UpdateContent(id, obfuscate.Strip(doc.Content))
	if err != nil {
		return session.Document{}, 0, err
	}
	return updated, removed, nil
}

// Upload parses a file into a new active document titled with the file's
// base name and starts scoring it. The returned channel is nil when no
// scorer is configured.
func (w *Workspace) Upload(ctx context.Context, name string, data []byte) (session.Document, <-chan review.Outcome, error) {
	text, err := parser.Parse(name, data)
	if err != nil {
		return session.Document{}, nil, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
	}
	doc := w.Store.CreateFromUpload(filepath.Base(name), text)
	w.logger.Info("uploaded document", zap.String("doc_id", doc.ID), zap.String("source", doc.Source), zap.Int("words", doc.WordCount))
	if w.Review == nil {
		return doc, nil, nil
	}
	ch, err := w.Review.Request(ctx, doc.ID)
	if err != nil {
		return doc, nil, err
	}
	return doc, ch, nil
}

// Write replaces the document's content.
func (w *Workspace) Write(id, text string) (session.Document, error) {
	return w.Store.UpdateContent(id, text)
}

// ApplySelection runs a selection action over runes [start,end) of the
// document and writes the result back.
func (w *Workspace) ApplySelection(id, action string, start, end int) (session.Document, error) {
	doc, err := w.Store.Get(id)
	if err != nil {
		return session.Document{}, err
	}
	out, _, err := textops.ApplyRange(action, doc.Content, start, end)
	if err != nil {
		return session.Document{}, err
	}
	return w.Store.UpdateContent(id, out)
}

// SelectionToNewTab opens a new document holding runes [start,end) of id.
func (w *Workspace) SelectionToNewTab(id string, start, end int) (session.Document, error) {
	doc, err := w.Store.Get(id)
	if err != nil {
		return session.Document{}, err
	}
	return w.NewTabWithText(textops.Slice(doc.Content, start, end))
}

// NewTabWithText opens a new active document holding text.
func (w *Workspace) NewTabWithText(text string) (session.Document, error) {
	doc := w.Store.CreateDocument("")
	if text == "" {
		return doc, nil
	}
	return w.Store.UpdateContent(doc.ID, text)
}

// Score asks the scorer for the document's current content.
func (w *Workspace) Score(ctx context.Context, id string) (<-chan review.Outcome, error) {
	if w.Review == nil {
		return nil, errors.New("no scorer configured")
	}
	return w.Review.Request(ctx, id)
}

// ScoreSelection scores runes [start,end) of the document into the review
// panel without touching the document's score.
func (w *Workspace) ScoreSelection(ctx context.Context, id string, start, end int) (<-chan review.Outcome, error) {
	if w.Review == nil {
		return nil, errors.New("no scorer configured")
	}
	doc, err := w.Store.Get(id)
	if err != nil {
		return nil, err
	}
	sel := textops.Slice(doc.Content, start, end)
	if strings.TrimSpace(sel) == "" {
		return nil, errors.New("selection is empty")
	}
	return w.Review.RequestText(ctx, review.SelectionName, sel), nil
}

// Wait drains in-flight scoring requests.
func (w *Workspace) Wait() {
	if w.Review != nil {
		w.Review.Wait()
	}
}
