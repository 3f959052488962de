// Package history persists the queue across restarts.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/queue"
)

// Store reads and writes queue snapshots as JSON.
type Store struct {
	path string
}

// NewStore creates a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the saved snapshot. A missing file is not an error: it returns
// an empty snapshot so a fresh install starts clean.
func (s *Store) Load() (queue.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return queue.Snapshot{}, nil
		}
		return queue.Snapshot{}, errors.Wrap(err, "reading session file")
	}
	var snap queue.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt file should not block startup.
		zlog.Warn().Err(err).Str("path", s.path).Msg("discarding corrupt session file")
		return queue.Snapshot{}, nil
	}
	return snap, nil
}

// Save writes the snapshot atomically, via a temp file and rename.
func (s *Store) Save(snap queue.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "creating session dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing session file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replacing session file")
	}
	return nil
}
