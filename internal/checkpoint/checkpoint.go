// Package checkpoint persists the last processed history ID for the
// watched mailbox. The on-disk format is shared with the watch
// registration flow, which seeds the baseline.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// state is the on-disk format: {"last_id": N}
type state struct {
	LastID uint64 `json:"last_id"`
}

// Store is a single-mailbox history checkpoint backed by a JSON file.
// All mutation goes through the mutex so concurrent deliveries cannot
// interleave read-modify-write cycles.
type Store struct {
	mu     sync.Mutex
	path   string
	lastID uint64
}

// Open loads the checkpoint at path. A missing file yields an
// uninitialized store; the first notification seeds it.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", path, err)
	}

	s.lastID = st.LastID
	return s, nil
}

// Last returns the stored history ID, 0 when uninitialized
func (s *Store) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Initialized reports whether a baseline history ID has been set
func (s *Store) Initialized() bool {
	return s.Last() != 0
}

// Advance moves the checkpoint forward to id and persists it. Smaller
// or equal IDs are ignored so the checkpoint never regresses.
func (s *Store) Advance(id uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id <= s.lastID {
		return s.lastID, nil
	}
	if err := s.write(id); err != nil {
		return s.lastID, err
	}
	s.lastID = id
	return s.lastID, nil
}

// Reset overwrites the checkpoint unconditionally. Used when the
// provider rejects the stored baseline and for watch registration.
func (s *Store) Reset(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(id); err != nil {
		return err
	}
	s.lastID = id
	return nil
}

// write persists atomically: temp file in the same directory, then rename
func (s *Store) write(id uint64) error {
	raw, err := json.Marshal(state{LastID: id})
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
