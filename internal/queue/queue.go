package queue

import "github.com/seb-lau/tubeamp/internal/track"

// Queue holds the pending tracks, the track being played, and a bounded
// history of finished tracks. It is only mutated from the orchestrator's
// single-threaded run loop.
type Queue struct {
	pending    []track.Track
	current    *track.Track
	history    []track.Track
	historyCap int
	cleared    bool
}

// Snapshot is the serializable form of a Queue.
type Snapshot struct {
	Pending []track.Track `json:"pending"`
	Current *track.Track  `json:"current,omitempty"`
	History []track.Track `json:"history"`
}

// New creates an empty Queue. historyCap bounds the history list; values
// below 1 fall back to 100.
func New(historyCap int) *Queue {
	if historyCap < 1 {
		historyCap = 100
	}
	return &Queue{historyCap: historyCap}
}

// Current returns the track being played, or nil.
func (q *Queue) Current() *track.Track {
	if q.current == nil {
		return nil
	}
	t := *q.current
	return &t
}

// EnqueueBack appends a track to the end of the pending list.
func (q *Queue) EnqueueBack(t track.Track) {
	q.pending = append(q.pending, t)
	q.cleared = false
}

// EnqueueMany appends tracks in order.
func (q *Queue) EnqueueMany(tracks []track.Track) {
	if len(tracks) == 0 {
		return
	}
	q.pending = append(q.pending, tracks...)
	q.cleared = false
}

// Advance moves the current track to history and promotes the front of the
// pending list. Returns the new current track, or nil if the queue ran dry.
func (q *Queue) Advance() *track.Track {
	if q.current != nil {
		q.pushHistory(*q.current)
		q.current = nil
	}
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &t
	return q.Current()
}

// Previous pushes the current track back to the front of the pending list
// and promotes the most recent history entry. Returns the new current track,
// or nil if the history is empty.
func (q *Queue) Previous() *track.Track {
	if len(q.history) == 0 {
		return nil
	}
	if q.current != nil {
		q.pending = append([]track.Track{*q.current}, q.pending...)
		q.current = nil
	}
	t := q.history[len(q.history)-1]
	q.history = q.history[:len(q.history)-1]
	q.current = &t
	return q.Current()
}

// PeekWindow returns up to n pending tracks in play order without
// consuming them.
func (q *Queue) PeekWindow(n int) []track.Track {
	if n > len(q.pending) {
		n = len(q.pending)
	}
	if n <= 0 {
		return nil
	}
	out := make([]track.Track, n)
	copy(out, q.pending[:n])
	return out
}

// RemoveAt removes the pending track at index i. Returns false if the index
// is out of range.
func (q *Queue) RemoveAt(i int) bool {
	if i < 0 || i >= len(q.pending) {
		return false
	}
	q.pending = append(q.pending[:i], q.pending[i+1:]...)
	return true
}

// Clear empties the pending list. The first call after an enqueue returns
// true; repeated calls are no-ops returning false until a track is
// enqueued again.
func (q *Queue) Clear() bool {
	if q.cleared {
		return false
	}
	q.pending = nil
	q.cleared = true
	return true
}

// ClearHistory drops all finished tracks.
func (q *Queue) ClearHistory() {
	q.history = nil
}

// Pending returns a copy of the pending list.
func (q *Queue) Pending() []track.Track {
	out := make([]track.Track, len(q.pending))
	copy(out, q.pending)
	return out
}

// History returns a copy of the history, oldest first.
func (q *Queue) History() []track.Track {
	out := make([]track.Track, len(q.history))
	copy(out, q.history)
	return out
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	return len(q.pending)
}

// HistoryLen returns the number of finished tracks kept.
func (q *Queue) HistoryLen() int {
	return len(q.history)
}

// Snapshot captures the queue for persistence.
func (q *Queue) Snapshot() Snapshot {
	return Snapshot{
		Pending: q.Pending(),
		Current: q.Current(),
		History: q.History(),
	}
}

// Restore replaces the queue contents with a snapshot, reproducing the saved
// pending/current/history arrangement exactly.
func (q *Queue) Restore(s Snapshot) {
	q.pending = append([]track.Track{}, s.Pending...)
	q.current = nil
	if s.Current != nil {
		t := *s.Current
		q.current = &t
	}
	q.history = append([]track.Track{}, s.History...)
	if len(q.history) > q.historyCap {
		q.history = q.history[len(q.history)-q.historyCap:]
	}
	q.cleared = false
}

func (q *Queue) pushHistory(t track.Track) {
	q.history = append(q.history, t)
	if len(q.history) > q.historyCap {
		q.history = q.history[1:]
	}
}
