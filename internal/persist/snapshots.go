package persist

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// KeySession is the key the document table is stored under.
	KeySession = "session"
	// KeySessionUnreadable keeps the last snapshot that failed to decode.
	KeySessionUnreadable = "session-unreadable"
)

const schemaURL = "veiltext://session.schema.json"

//go:embed session.schema.json
var sessionSchema []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(sessionSchema)); err != nil {
		panic(fmt.Sprintf("add schema resource: %v", err))
	}
	s, err := compiler.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// Snapshots implements session.Persister over a KV.
type Snapshots struct {
	kv KV
}

// NewSnapshots wraps kv.
func NewSnapshots(kv KV) *Snapshots { return &Snapshots{kv: kv} }

// LoadDocuments returns session.ErrNoSnapshot when nothing was saved yet.
// Stored data that fails schema validation is copied to
// KeySessionUnreadable and reported as session.ErrCorruptSnapshot. Read
// errors are returned as they are.
func (s *Snapshots) LoadDocuments(ctx context.Context) (*session.Snapshot, error) {
	b, err := s.kv.Get(ctx, KeySession)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, session.ErrNoSnapshot
		}
		return nil, err
	}
	var snap session.Snapshot
	err = ValidateSnapshot(b)
	if err == nil {
		if err = json.Unmarshal(b, &snap); err != nil {
			err = fmt.Errorf("parse snapshot: %w", err)
		}
	}
	if err != nil {
		if berr := s.kv.Put(ctx, KeySessionUnreadable, b); berr != nil {
			return nil, fmt.Errorf("%v; keep unreadable copy: %w", err, berr)
		}
		return nil, fmt.Errorf("%w: %v", session.ErrCorruptSnapshot, err)
	}
	return &snap, nil
}

// SaveDocuments stores the snapshot as JSON.
func (s *Snapshots) SaveDocuments(ctx context.Context, snap session.Snapshot) error {
	if snap.Documents == nil {
		snap.Documents = []session.Document{}
	}
	return SaveJSON(ctx, s.kv, KeySession, snap)
}

// ValidateSnapshot checks raw JSON against the embedded snapshot schema.
func ValidateSnapshot(b []byte) error {
	var instance any
	if err := json.Unmarshal(b, &instance); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	return nil
}
