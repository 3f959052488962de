// Package orchestrator coordinates the queue, the download scheduler,
// the artifact cache and the playback engine.
package orchestrator

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/cache"
	"github.com/seb-lau/tubeamp/internal/fetch"
	"github.com/seb-lau/tubeamp/internal/history"
	"github.com/seb-lau/tubeamp/internal/player"
	"github.com/seb-lau/tubeamp/internal/queue"
	"github.com/seb-lau/tubeamp/internal/track"
)

const (
	pollInitial = 200 * time.Millisecond
	pollMax     = 2 * time.Second
)

// Config holds the orchestrator knobs.
type Config struct {
	WindowSize int
}

// Snapshot is a point-in-time view for rendering.
type Snapshot struct {
	Current   *track.Track
	State     player.State
	Elapsed   time.Duration
	Volume    float64
	Pending   []track.Track
	History   []track.Track
	Fetches   map[string]track.FetchState
	LastIssue string
	CacheLen  int
	CacheSize int64
}

// Orchestrator owns the playback session. All queue mutations happen on
// its run loop; control methods post work to the loop and return.
type Orchestrator struct {
	q      *queue.Queue
	sched  *fetch.Scheduler
	engine *player.Engine
	cache  *cache.Cache
	store  *history.Store
	cfg    Config

	cmds      chan func()
	done      chan struct{}
	poll      *time.Timer
	pollDelay time.Duration
	lastIssue string
}

// New creates an Orchestrator. Run must be called before the control
// methods have any effect.
func New(q *queue.Queue, sched *fetch.Scheduler, engine *player.Engine, c *cache.Cache, store *history.Store, cfg Config) *Orchestrator {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 10
	}
	return &Orchestrator{
		q:         q,
		sched:     sched,
		engine:    engine,
		cache:     c,
		store:     store,
		cfg:       cfg,
		cmds:      make(chan func(), 32),
		done:      make(chan struct{}),
		pollDelay: pollInitial,
	}
}

// Run drives the session until ctx is cancelled. On shutdown the queue is
// saved and playback stops.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	o.restoreSession()

	o.poll = time.NewTimer(time.Hour)
	o.poll.Stop()
	defer o.poll.Stop()

	if o.q.Current() != nil {
		// A restored session keeps its current track; resume it in place.
		o.resetPoll()
		o.tryLoad()
	} else if o.q.Len() > 0 {
		o.startNext()
	}
	o.refreshWindow()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case fn := <-o.cmds:
			fn()
		case res := <-o.sched.Results():
			o.onFetchResult(res)
		case ev := <-o.engine.Events():
			o.onEngineEvent(ev)
		case <-o.poll.C:
			o.tryLoad()
		}
	}
}

// post hands fn to the run loop. Dropped once the loop has exited.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// Enqueue appends tracks to the queue. Playback starts if nothing is
// playing yet.
func (o *Orchestrator) Enqueue(tracks ...track.Track) {
	o.post(func() {
		o.q.EnqueueMany(tracks)
		if o.q.Current() == nil && o.engine.State() == player.StateStopped {
			o.startNext()
		}
		o.refreshWindow()
	})
}

// Next skips to the following track.
func (o *Orchestrator) Next() {
	o.post(func() {
		o.stopCurrent()
		o.startNext()
		o.refreshWindow()
	})
}

// Previous returns to the most recently played track, or restarts the
// current one when the history is empty.
func (o *Orchestrator) Previous() {
	o.post(func() {
		o.stopCurrent()
		if o.q.Previous() == nil && o.q.Current() == nil {
			// Nothing played before this track; play it again.
			o.startNext()
			o.refreshWindow()
			return
		}
		o.resetPoll()
		o.tryLoad()
		o.refreshWindow()
	})
}

// TogglePause flips play/pause on the engine.
func (o *Orchestrator) TogglePause() { o.engine.TogglePause() }

// Seek moves playback by delta.
func (o *Orchestrator) Seek(delta time.Duration) { o.engine.Seek(delta) }

// SetVolume sets the playback volume in [0, 1].
func (o *Orchestrator) SetVolume(v float64) { o.engine.SetVolume(v) }

// AdjustVolume nudges the volume by delta.
func (o *Orchestrator) AdjustVolume(delta float64) { o.engine.AdjustVolume(delta) }

// Clear empties the pending queue. The playing track is unaffected.
func (o *Orchestrator) Clear() {
	o.post(func() {
		if o.q.Clear() {
			zlog.Info().Msg("queue cleared")
			o.refreshWindow()
		}
	})
}

// ClearHistory drops the played-track history.
func (o *Orchestrator) ClearHistory() {
	o.post(func() { o.q.ClearHistory() })
}

// Remove drops the pending track at index i.
func (o *Orchestrator) Remove(i int) {
	o.post(func() {
		if o.q.RemoveAt(i) {
			o.refreshWindow()
		}
	})
}

// Snapshot returns the state the UI renders from. It returns a zero value
// once the run loop has exited.
func (o *Orchestrator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case o.cmds <- func() { reply <- o.snapshot() }:
		return <-reply
	case <-o.done:
		return Snapshot{}
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	return Snapshot{
		Current:   o.q.Current(),
		State:     o.engine.State(),
		Elapsed:   o.engine.Elapsed(),
		Volume:    o.engine.Volume(),
		Pending:   o.q.Pending(),
		History:   o.q.History(),
		Fetches:   o.sched.Statuses(),
		LastIssue: o.lastIssue,
		CacheLen:  o.cache.Len(),
		CacheSize: o.cache.Size(),
	}
}

// startNext advances the queue and tries to play the new current track.
func (o *Orchestrator) startNext() {
	if o.q.Advance() == nil {
		zlog.Debug().Msg("queue ran dry")
		return
	}
	o.resetPoll()
	o.tryLoad()
}

// tryLoad starts playback of the current track if its artifact is ready.
// Otherwise the scheduler keeps it at top priority and the orchestrator
// polls with backoff until it lands.
func (o *Orchestrator) tryLoad() {
	cur := o.q.Current()
	if cur == nil || o.engine.State() != player.StateStopped {
		return
	}

	art, ok := o.cache.Get(cur.ID)
	if !ok {
		// Enqueue first: once the cooldown has elapsed this re-queues the
		// track instead of skipping it.
		o.sched.Enqueue(cur.ID, fetch.TierCurrent)
		if st, known := o.sched.StateFor(cur.ID); known && st == track.FetchFailed {
			// The track failed while it was still a lookahead; its terminal
			// result was consumed back then, so skip it here.
			zlog.Warn().Str("track", cur.ID).Msg("current track failed to download, skipping")
			o.lastIssue = cur.Title + ": download failed"
			o.startNext()
			o.refreshWindow()
			return
		}
		o.armPoll()
		return
	}

	if err := o.engine.Load(*cur, art.Path); err != nil {
		if errors.Is(err, player.ErrDecode) {
			// Corrupt artifact: drop it and fetch again.
			zlog.Warn().Err(err).Str("track", cur.ID).Msg("evicting undecodable artifact")
			o.cache.Evict(cur.ID)
			o.sched.Enqueue(cur.ID, fetch.TierCurrent)
			o.armPoll()
			return
		}
		zlog.Error().Err(err).Str("track", cur.ID).Msg("load failed")
		o.lastIssue = cur.Title + ": " + err.Error()
		return
	}
	o.cache.Pin(cur.ID)
}

func (o *Orchestrator) onFetchResult(res fetch.Result) {
	cur := o.q.Current()
	if res.Err != nil {
		zlog.Warn().Err(res.Err).Str("track", res.TrackID).Msg("fetch failed")
		if cur != nil && cur.ID == res.TrackID && o.engine.State() == player.StateStopped {
			o.lastIssue = cur.Title + ": " + res.Err.Error()
			// The current track cannot play; move on.
			o.startNext()
			o.refreshWindow()
		}
		return
	}
	if cur != nil && cur.ID == res.TrackID && o.engine.State() == player.StateStopped {
		o.resetPoll()
		o.tryLoad()
	}
}

func (o *Orchestrator) onEngineEvent(ev player.Event) {
	switch ev.Type {
	case player.EventEnded:
		o.cache.Unpin()
		o.startNext()
		o.refreshWindow()
	case player.EventStarted:
		zlog.Info().Str("track", ev.TrackID).Msg("now playing")
	}
}

// stopCurrent halts playback and releases the pinned artifact.
func (o *Orchestrator) stopCurrent() {
	if o.engine.State() != player.StateStopped {
		o.engine.Stop()
	}
	o.cache.Unpin()
}

// refreshWindow points the scheduler at the current track plus the next
// few pending ones.
func (o *Orchestrator) refreshWindow() {
	var curID string
	if cur := o.q.Current(); cur != nil {
		curID = cur.ID
	}
	upcoming := o.q.PeekWindow(o.cfg.WindowSize)
	ids := make([]string, len(upcoming))
	for i, t := range upcoming {
		ids[i] = t.ID
	}
	o.sched.SetPriorityWindow(curID, ids)
}

func (o *Orchestrator) armPoll() {
	o.poll.Reset(o.pollDelay)
	o.pollDelay *= 2
	if o.pollDelay > pollMax {
		o.pollDelay = pollMax
	}
}

func (o *Orchestrator) resetPoll() {
	o.pollDelay = pollInitial
}

func (o *Orchestrator) restoreSession() {
	if o.store == nil {
		return
	}
	snap, err := o.store.Load()
	if err != nil {
		zlog.Warn().Err(err).Msg("session restore failed")
		return
	}
	o.q.Restore(snap)
	if n := len(snap.Pending); n > 0 || snap.Current != nil {
		zlog.Info().Int("pending", o.q.Len()).Msg("session restored")
	}
}

func (o *Orchestrator) shutdown() {
	if o.store != nil {
		if err := o.store.Save(o.q.Snapshot()); err != nil {
			zlog.Warn().Err(err).Msg("session save failed")
		}
	}
	o.stopCurrent()
}
