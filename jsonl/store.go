// Package jsonl persists DiffSets in an append-only JSONL file.
//
// Every Save and Finalize appends one record; loading replays the file so
// the last record for an ID wins.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/diffset"
)

// Compile-time interface verification.
var _ diffset.Store = (*Store)(nil)

// maxLineSize is the maximum size for a single JSONL line (64MB).
// DiffSets embed whole diffs, so lines are much larger than typical JSON.
const maxLineSize = 64 * 1024 * 1024

// Record operations.
const (
	opSave     = "save"
	opFinalize = "finalize"
)

// record is a single line of the log.
type record struct {
	Op      string           `json:"op"`
	ID      string           `json:"id"`
	DiffSet *diffset.DiffSet `json:"diffset,omitempty"`
	At      time.Time        `json:"at"`
}

// Store implements diffset.Store over a JSONL file. It is safe for
// concurrent use within a process.
type Store struct {
	mu   sync.Mutex
	path string
	Now  func() time.Time
}

// NewStore creates a Store writing to path.
func NewStore(path string) *Store {
	return &Store{path: path, Now: time.Now}
}

// Save appends ds to the log.
func (s *Store) Save(_ context.Context, ds *diffset.DiffSet) error {
	if ds.ID == "" {
		return errors.New("jsonl: cannot save a diffset without an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.append(record{Op: opSave, ID: ds.ID, DiffSet: ds, At: s.Now()})
}

// Load returns the most recently saved version of the DiffSet with id.
func (s *Store) Load(_ context.Context, id string) (*diffset.DiffSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.replay()
	if err != nil {
		return nil, err
	}
	ds, ok := st.diffsets[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, diffset.ErrNotFound)
	}
	return ds, nil
}

// Finalize marks the DiffSet's history as published.
func (s *Store) Finalize(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.replay()
	if err != nil {
		return err
	}
	if _, ok := st.diffsets[id]; !ok {
		return fmt.Errorf("%s: %w", id, diffset.ErrNotFound)
	}
	if st.finalized[id] {
		return nil
	}
	return s.append(record{Op: opFinalize, ID: id, At: s.Now()})
}

// IsFinalized reports whether Finalize has been called for id. Unknown IDs
// are not finalized.
func (s *Store) IsFinalized(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.replay()
	if err != nil {
		return false, err
	}
	return st.finalized[id], nil
}

type state struct {
	diffsets  map[string]*diffset.DiffSet
	finalized map[string]bool
}

// replay reads the log. A missing file is an empty store.
func (s *Store) replay() (*state, error) {
	st := &state{diffsets: map[string]*diffset.DiffSet{}, finalized: map[string]bool{}}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		switch r.Op {
		case opSave:
			if r.DiffSet == nil {
				return nil, fmt.Errorf("line %d: save record without diffset", lineNum)
			}
			st.diffsets[r.ID] = r.DiffSet
		case opFinalize:
			st.finalized[r.ID] = true
		default:
			return nil, fmt.Errorf("line %d: unknown op %q", lineNum, r.Op)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return st, nil
}

// append writes r to the log, creating parent directories if needed.
func (s *Store) append(r record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}

	return nil
}
