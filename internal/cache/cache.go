// Package cache stores fetched audio artifacts on disk and owns their
// lifetime. Entries age out after a TTL; the artifact loaded by the playback
// engine is pinned and survives sweeps until unpinned.
package cache

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrNotAudio is returned by Put when the payload was not validated as
// decodable audio. No artifact is stored in that case.
var ErrNotAudio = errors.New("payload not validated as audio")

const (
	artifactPrefix = "tubeamp-"
	stagingSuffix  = ".part"
)

// Artifact is a cached playable payload for one track ID. At most one
// artifact exists per track ID; a retry overwrites the previous one.
type Artifact struct {
	TrackID   string
	Path      string
	Size      int64
	FetchedAt time.Time
	Validated bool
}

// Cache maps track IDs to on-disk artifacts. Writers (fetch workers) and
// readers (orchestrator, sweeper) synchronize through the internal mutex; an
// artifact only becomes visible after its file is fully written and renamed
// into place.
type Cache struct {
	mu      sync.Mutex
	dir     string
	ttl     time.Duration
	entries map[string]Artifact
	pinned  string

	now func() time.Time
}

// New creates a cache rooted at dir, creating the directory if needed and
// removing leftover files from previous runs.
func New(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating cache dir")
	}
	c := &Cache{
		dir:     dir,
		ttl:     ttl,
		entries: make(map[string]Artifact),
		now:     time.Now,
	}
	c.removeOrphans()
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// removeOrphans deletes artifact and staging files left behind by a previous
// process. The in-memory map starts empty, so anything on disk is stale.
func (c *Cache) removeOrphans() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) {
			continue
		}
		if os.Remove(filepath.Join(c.dir, e.Name())) == nil {
			removed++
		}
	}
	if removed > 0 {
		zlog.Debug().Int("files", removed).Msg("removed orphaned cache files")
	}
}

// StagingPath returns a fresh path for an in-progress download of the given
// track. Staged files are invisible to Get until published by Put.
func (c *Cache) StagingPath(id string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s%s-%08x%s", artifactPrefix, id, rand.Uint32(), stagingSuffix))
}

// Get returns the artifact for a track if present, valid and not expired.
func (c *Cache) Get(id string) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	art, ok := c.entries[id]
	if !ok || !art.Validated {
		return Artifact{}, false
	}
	if c.ttl > 0 && c.now().Sub(art.FetchedAt) > c.ttl && id != c.pinned {
		return Artifact{}, false
	}
	return art, true
}

// Put publishes a staged download as the artifact for the track, atomically
// renaming it into its final location. An unvalidated payload is rejected
// with ErrNotAudio and the staging file is removed. A previous artifact for
// the same track is overwritten.
func (c *Cache) Put(id, stagingPath string, validated bool) (Artifact, error) {
	if !validated {
		os.Remove(stagingPath)
		return Artifact{}, ErrNotAudio
	}

	info, err := os.Stat(stagingPath)
	if err != nil {
		return Artifact{}, errors.Wrap(err, "staged artifact missing")
	}

	final := filepath.Join(c.dir, artifactPrefix+id+".audio")
	if err := os.Rename(stagingPath, final); err != nil {
		os.Remove(stagingPath)
		return Artifact{}, errors.Wrap(err, "publishing artifact")
	}

	art := Artifact{
		TrackID:   id,
		Path:      final,
		Size:      info.Size(),
		FetchedAt: c.now(),
		Validated: true,
	}

	c.mu.Lock()
	c.entries[id] = art
	c.mu.Unlock()

	zlog.Debug().Str("track", id).Int64("bytes", art.Size).Msg("artifact cached")
	return art, nil
}

// Evict removes a track's artifact immediately, pinned or not. Used when a
// track is dropped from all queues or its artifact turned out corrupt.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	art, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	if ok {
		os.Remove(art.Path)
		zlog.Debug().Str("track", id).Msg("artifact evicted")
	}
}

// Pin marks a track's artifact as loaded for playback, protecting it from
// TTL sweeps. Only one artifact is pinned at a time.
func (c *Cache) Pin(id string) {
	c.mu.Lock()
	c.pinned = id
	c.mu.Unlock()
}

// Unpin clears the playback pin.
func (c *Cache) Unpin() {
	c.mu.Lock()
	c.pinned = ""
	c.mu.Unlock()
}

// Sweep removes every artifact older than the TTL except the pinned one.
// Returns the number of entries removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	var stale []Artifact
	for id, art := range c.entries {
		if id == c.pinned {
			continue
		}
		if now.Sub(art.FetchedAt) > c.ttl {
			stale = append(stale, art)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, art := range stale {
		os.Remove(art.Path)
	}
	if len(stale) > 0 {
		zlog.Debug().Int("removed", len(stale)).Msg("cache sweep")
	}
	return len(stale)
}

// Run sweeps the cache on a fixed interval until ctx is canceled. The
// interval is independent of playback activity.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			c.Sweep(t)
		}
	}
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the total bytes held by cached artifacts.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, art := range c.entries {
		total += art.Size
	}
	return total
}
