// Package track defines the immutable track value shared across the player.
package track

import "time"

// Track is a single piece of remote content, identified by its video ID.
// Tracks are created when metadata is resolved and never mutated afterwards;
// they are cheap to copy by value.
type Track struct {
	ID       string
	Title    string
	Duration time.Duration
	Uploader string
}

// FetchState represents the download state of a track's audio artifact.
type FetchState int

const (
	FetchPending     FetchState = iota // eligible but no fetch started
	FetchDownloading                   // a fetch task is in flight
	FetchReady                         // valid artifact in the cache
	FetchFailed                        // attempts exhausted, cooling down
)

// String returns the name of the fetch state.
func (s FetchState) String() string {
	switch s {
	case FetchDownloading:
		return "downloading"
	case FetchReady:
		return "ready"
	case FetchFailed:
		return "failed"
	default:
		return "pending"
	}
}
