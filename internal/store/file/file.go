// Package file keeps ledger snapshots in a single local JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
)

type record struct {
	SavedAt  time.Time       `json:"saved_at"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type document struct {
	Ledgers map[string]record `json:"ledgers"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) LoadSnapshot(ctx context.Context, ledgerID string) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return domain.Snapshot{}, err
	}
	rec, ok := doc.Ledgers[ledgerID]
	if !ok {
		return domain.Snapshot{}, store.ErrNotFound
	}
	return rec.Snapshot.Clone(), nil
}

// SaveSnapshot rewrites the document through a temp file and rename so a
// crash never leaves a half-written file behind.
func (s *Store) SaveSnapshot(ctx context.Context, ledgerID string, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Ledgers[ledgerID] = record{SavedAt: time.Now().UTC(), Snapshot: snapshot}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot document: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) read() (document, error) {
	doc := document{Ledgers: map[string]record{}}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode snapshot document %s: %w", s.path, err)
	}
	if doc.Ledgers == nil {
		doc.Ledgers = map[string]record{}
	}
	return doc, nil
}
