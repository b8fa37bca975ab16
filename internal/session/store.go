package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for ids that are not in the table.
	ErrNotFound = errors.New("document not found")
	// ErrNoSnapshot is returned by a Persister that has nothing stored yet.
	ErrNoSnapshot = errors.New("no saved documents")
	// ErrCorruptSnapshot is returned by a Persister whose stored snapshot
	// cannot be decoded. The persister keeps a copy of the bad value.
	ErrCorruptSnapshot = errors.New("saved documents are unreadable")
	// ErrLastDocument is returned when closing the only open document
	// without allowLast.
	ErrLastDocument = errors.New("document is the last one open")
)

const saveTimeout = 5 * time.Second

// Snapshot is the persisted form of a Store.
type Snapshot struct {
	Documents []Document `json:"documents"`
	ActiveID  string     `json:"active_id"`
	NextSeq   int        `json:"next_seq"`
	Uploads   []Upload   `json:"uploads,omitempty"`
}

// Persister loads and saves snapshots.
type Persister interface {
	LoadDocuments(ctx context.Context) (*Snapshot, error)
	SaveDocuments(ctx context.Context, snap Snapshot) error
}

// Store is the ordered table of open documents plus the active selection.
// It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	docs     []*Document
	activeID string
	seq      int
	uploads  []Upload

	persister Persister
	logger    *zap.Logger
	now       func() time.Time
	countFn   func(string) int
}

// Option configures a Store.
type Option func(*Store)

// WithPersister saves a snapshot after every mutation.
func WithPersister(p Persister) Option { return func(s *Store) { s.persister = p } }

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLegacyWordCount counts blank content as one word.
func WithLegacyWordCount() Option { return func(s *Store) { s.countFn = CountWordsLegacy } }

// New returns an empty store. Nothing is loaded; see Open.
func New(opts ...Option) *Store {
	s := &Store{
		logger:  zap.NewNop(),
		now:     time.Now,
		countFn: CountWords,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open builds a store and rehydrates it from the persister. A missing,
// corrupt or empty snapshot starts fresh with one empty document. Any other
// load failure is returned so the stored documents are not overwritten.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := New(opts...)
	if s.persister == nil {
		s.CreateDocument("")
		return s, nil
	}
	snap, err := s.persister.LoadDocuments(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.logger.Debug("no saved documents, starting fresh")
	case errors.Is(err, ErrCorruptSnapshot):
		s.logger.Warn("saved documents unreadable, starting fresh", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("load documents: %w", err)
	default:
		s.restore(snap)
	}
	if s.Len() == 0 {
		s.CreateDocument("")
	}
	return s, nil
}

func (s *Store) restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = max(snap.NextSeq-1, 0)
	seen := make(map[string]bool, len(snap.Documents))
	for i := range snap.Documents {
		d := snap.Documents[i]
		if d.ID == "" || seen[d.ID] {
			s.logger.Warn("skipping document with empty or duplicate id", zap.String("id", d.ID))
			continue
		}
		seen[d.ID] = true
		d.WordCount = s.countFn(d.Content)
		if d.AIScore != nil {
			v := ClampScore(*d.AIScore)
			d.AIScore = &v
		}
		if n, err := strconv.Atoi(d.ID); err == nil && n > s.seq {
			s.seq = n
		}
		s.docs = append(s.docs, &d)
	}
	for _, u := range snap.Uploads {
		if u.Name != "" {
			s.uploads = append(s.uploads, u)
		}
	}
	s.activeID = ""
	if len(s.docs) > 0 {
		s.activeID = s.docs[0].ID
		if s.indexLocked(snap.ActiveID) >= 0 {
			s.activeID = snap.ActiveID
		}
	}
}

// CreateDocument appends an empty document and makes it active. A blank
// title becomes "New Tab N".
func (s *Store) CreateDocument(title string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.newLocked(title, "", "")
	s.persistLocked()
	return d.clone()
}

// CreateFromUpload adds a document holding an uploaded file's text, titled
// with the file name, and makes it active. The file is also recorded in the
// uploads list.
func (s *Store) CreateFromUpload(name, content string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.newLocked(name, content, name)
	s.uploads = append(s.uploads, Upload{Name: d.Title, DocID: d.ID, Words: d.WordCount, UploadedAt: d.CreatedAt})
	s.persistLocked()
	return d.clone()
}

func (s *Store) newLocked(title, content, source string) *Document {
	s.seq++
	id := strconv.Itoa(s.seq)
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Tab " + id
	}
	now := s.now().UTC()
	d := &Document{
		ID:        id,
		Title:     title,
		Content:   content,
		WordCount: s.countFn(content),
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.docs = append(s.docs, d)
	s.activeID = id
	return d
}

// CloseDocument removes a document. When it was active, the one before it
// becomes active, or the first remaining one. Closing the last document
// leaves the store empty and fails with ErrLastDocument unless allowLast.
func (s *Store) CloseDocument(id string, allowLast bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if len(s.docs) == 1 && !allowLast {
		return fmt.Errorf("%w: %s", ErrLastDocument, id)
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	if s.activeID == id {
		switch {
		case len(s.docs) == 0:
			s.activeID = ""
		case i-1 >= 0:
			s.activeID = s.docs[i-1].ID
		default:
			s.activeID = s.docs[0].ID
		}
	}
	s.persistLocked()
	return nil
}

// RenameDocument sets the title. A blank title falls back to "Tab <id>".
func (s *Store) RenameDocument(id, title string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return Document{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Tab " + id
	}
	d.Title = title
	d.UpdatedAt = s.now().UTC()
	s.persistLocked()
	return d.clone(), nil
}

// SetActive selects a document.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return err
	}
	s.activeID = d.ID
	s.persistLocked()
	return nil
}

// HideDocument hides a tab from the visible list. The document stays open
// and may remain active.
func (s *Store) HideDocument(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return Document{}, err
	}
	if !d.Hidden {
		d.Hidden = true
		s.persistLocked()
	}
	return d.clone(), nil
}

// ShowAll unhides every document and returns how many were hidden.
func (s *Store) ShowAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.docs {
		if d.Hidden {
			d.Hidden = false
			n++
		}
	}
	if n > 0 {
		s.persistLocked()
	}
	return n
}

// Visible returns copies of the documents that are not hidden.
func (s *Store) Visible() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		if !d.Hidden {
			out = append(out, d.clone())
		}
	}
	return out
}

// Uploads returns the uploaded-files list, oldest first.
func (s *Store) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// RemoveUpload drops entry i of the uploads list. The document opened from
// it is left alone.
func (s *Store) RemoveUpload(i int) (Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.uploads) {
		return Upload{}, fmt.Errorf("%w: upload %d", ErrNotFound, i)
	}
	u := s.uploads[i]
	s.uploads = append(s.uploads[:i], s.uploads[i+1:]...)
	s.persistLocked()
	return u, nil
}

// ClearUploads empties the uploads list and returns how many entries went.
func (s *Store) ClearUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.uploads)
	if n > 0 {
		s.uploads = nil
		s.persistLocked()
	}
	return n
}

// UpdateContent replaces the text and recomputes the word count. The cached
// score is left as is; it goes stale until scoring is requested again.
func (s *Store) UpdateContent(id, text string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return Document{}, err
	}
	d.Content = text
	d.WordCount = s.countFn(text)
	d.UpdatedAt = s.now().UTC()
	s.persistLocked()
	return d.clone(), nil
}

// RecordScore stores a score clamped to [0,100].
func (s *Store) RecordScore(id string, score int) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return Document{}, err
	}
	v := ClampScore(score)
	d.AIScore = &v
	s.persistLocked()
	return d.clone(), nil
}

// Get returns a copy of a document.
func (s *Store) Get(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getLocked(id)
	if err != nil {
		return Document{}, err
	}
	return d.clone(), nil
}

// Active returns the active document; false when the store is empty.
func (s *Store) Active() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return Document{}, false
	}
	d, err := s.getLocked(s.activeID)
	if err != nil {
		return Document{}, false
	}
	return d.clone(), true
}

// ActiveID returns the active id, or "" when empty.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// List returns copies of all documents in tab order.
func (s *Store) List() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.clone()
	}
	return out
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Snapshot returns the persisted form of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	docs := make([]Document, len(s.docs))
	for i, d := range s.docs {
		docs[i] = d.clone()
	}
	var uploads []Upload
	if len(s.uploads) > 0 {
		uploads = make([]Upload, len(s.uploads))
		copy(uploads, s.uploads)
	}
	return Snapshot{Documents: docs, ActiveID: s.activeID, NextSeq: s.seq + 1, Uploads: uploads}
}

func (s *Store) indexLocked(id string) int {
	for i, d := range s.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) getLocked(id string) (*Document, error) {
	i := s.indexLocked(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.docs[i], nil
}

// persistLocked is best effort: in-memory state stays authoritative.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.persister.SaveDocuments(ctx, s.snapshotLocked()); err != nil {
		s.logger.Warn("save documents failed", zap.Error(err))
	}
}
