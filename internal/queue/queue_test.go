package queue

import (
	"testing"
	"time"

	"github.com/seb-lau/tubeamp/internal/track"
)

func tr(id string) track.Track {
	return track.Track{ID: id, Title: "title " + id, Duration: 3 * time.Minute}
}

func TestAdvanceThroughQueue(t *testing.T) {
	q := New(10)
	q.EnqueueMany([]track.Track{tr("a"), tr("b")})

	cur := q.Advance()
	if cur == nil || cur.ID != "a" {
		t.Fatalf("first advance: got %v, want a", cur)
	}
	cur = q.Advance()
	if cur == nil || cur.ID != "b" {
		t.Fatalf("second advance: got %v, want b", cur)
	}
	if got := q.HistoryLen(); got != 1 {
		t.Fatalf("history length = %d, want 1", got)
	}
	if cur = q.Advance(); cur != nil {
		t.Fatalf("advance past end: got %v, want nil", cur)
	}
	if got := q.HistoryLen(); got != 2 {
		t.Fatalf("history length after running dry = %d, want 2", got)
	}
}

func TestPreviousRestoresFromHistory(t *testing.T) {
	q := New(10)
	q.EnqueueMany([]track.Track{tr("a"), tr("b"), tr("c")})
	q.Advance() // a
	q.Advance() // b, history [a]

	cur := q.Previous()
	if cur == nil || cur.ID != "a" {
		t.Fatalf("previous: got %v, want a", cur)
	}
	// b went back to the front of the pending list.
	pend := q.Pending()
	if len(pend) != 2 || pend[0].ID != "b" || pend[1].ID != "c" {
		t.Fatalf("pending after previous = %v", pend)
	}
	if q.HistoryLen() != 0 {
		t.Fatalf("history should be empty, has %d", q.HistoryLen())
	}
	if got := q.Previous(); got != nil {
		t.Fatalf("previous with empty history: got %v, want nil", got)
	}
}

func TestHistoryBounded(t *testing.T) {
	q := New(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.EnqueueBack(tr(id))
	}
	for range 5 {
		q.Advance()
	}
	q.Advance() // e moves to history

	hist := q.History()
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[0].ID != "c" || hist[2].ID != "e" {
		t.Fatalf("history = %v, want [c d e]", hist)
	}
}

func TestPeekWindow(t *testing.T) {
	q := New(10)
	q.EnqueueMany([]track.Track{tr("a"), tr("b"), tr("c")})

	win := q.PeekWindow(2)
	if len(win) != 2 || win[0].ID != "a" || win[1].ID != "b" {
		t.Fatalf("window = %v", win)
	}
	if win = q.PeekWindow(10); len(win) != 3 {
		t.Fatalf("oversized window = %v, want all 3", win)
	}
	if q.Len() != 3 {
		t.Fatalf("peek must not consume, len = %d", q.Len())
	}
	if win = q.PeekWindow(0); win != nil {
		t.Fatalf("zero window = %v, want nil", win)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	q := New(10)
	q.EnqueueBack(tr("a"))

	if !q.Clear() {
		t.Fatal("first clear should report work done")
	}
	if q.Clear() {
		t.Fatal("second clear should be a no-op")
	}
	q.EnqueueBack(tr("b"))
	if !q.Clear() {
		t.Fatal("clear after enqueue should report work done")
	}
}

func TestRemoveAt(t *testing.T) {
	q := New(10)
	q.EnqueueMany([]track.Track{tr("a"), tr("b"), tr("c")})

	if !q.RemoveAt(1) {
		t.Fatal("remove valid index failed")
	}
	pend := q.Pending()
	if len(pend) != 2 || pend[0].ID != "a" || pend[1].ID != "c" {
		t.Fatalf("pending after remove = %v", pend)
	}
	if q.RemoveAt(5) || q.RemoveAt(-1) {
		t.Fatal("remove out of range should fail")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	q := New(10)
	q.EnqueueMany([]track.Track{tr("a"), tr("b"), tr("c")})
	q.Advance() // current a
	q.Advance() // current b, history [a]

	r := New(10)
	r.Restore(q.Snapshot())

	cur := r.Current()
	if cur == nil || cur.ID != "b" {
		t.Fatalf("restored current = %v, want b", cur)
	}
	pend := r.Pending()
	if len(pend) != 1 || pend[0].ID != "c" {
		t.Fatalf("restored pending = %v, want [c]", pend)
	}
	hist := r.History()
	if len(hist) != 1 || hist[0].ID != "a" {
		t.Fatalf("restored history = %v, want [a]", hist)
	}
}

func TestRestoreWithoutCurrent(t *testing.T) {
	q := New(10)
	q.Restore(Snapshot{Pending: []track.Track{tr("a")}})

	if cur := q.Current(); cur != nil {
		t.Fatalf("restored current = %v, want nil", cur)
	}
	if cur := q.Advance(); cur == nil || cur.ID != "a" {
		t.Fatalf("advance after restore = %v, want a", cur)
	}
}

func TestRestoreTruncatesOversizedHistory(t *testing.T) {
	snap := Snapshot{History: []track.Track{tr("a"), tr("b"), tr("c"), tr("d")}}
	q := New(2)
	q.Restore(snap)

	hist := q.History()
	if len(hist) != 2 || hist[0].ID != "c" || hist[1].ID != "d" {
		t.Fatalf("restored history = %v, want [c d]", hist)
	}
}
