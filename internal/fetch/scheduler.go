package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/cache"
	"github.com/seb-lau/tubeamp/internal/track"
)

// Tier is the fetch priority class of a task.
type Tier int

const (
	TierCurrent   Tier = iota // the track loaded (or about to load) for playback
	TierLookahead             // inside the priority window, fetched in queue order
)

// Task is one scheduled fetch attempt for a track. At most one task per
// track ID is outstanding at any time.
type Task struct {
	ID      uuid.UUID
	TrackID string
	Tier    Tier
	Attempt int
}

// Result reports the terminal outcome of fetching a track: a published
// artifact, or an error once retries are exhausted or the failure is
// permanent. Intermediate retries are not surfaced.
type Result struct {
	TrackID  string
	Artifact cache.Artifact
	Err      error
}

// Runner executes a single fetch task. Implemented by Fetcher; tests
// substitute fakes.
type Runner interface {
	Run(ctx context.Context, task Task) (cache.Artifact, error)
}

// Config bounds the scheduler. MaxConcurrent is independent of the priority
// window size.
type Config struct {
	MaxConcurrent int
	MaxAttempts   int
	Cooldown      time.Duration
}

type inflight struct {
	task      *Task
	cancel    context.CancelFunc
	started   time.Time
	preempted bool
}

// Scheduler converts the current shape of the playback queue into fetch
// work: the current track at tier 0, the lookahead window at tier 1,
// everything else unscheduled. It deduplicates requests, bounds concurrency,
// retries transient failures and cools down tracks whose fetches keep
// failing.
type Scheduler struct {
	mu       sync.Mutex
	runner   Runner
	cache    *cache.Cache
	cfg      Config
	window   map[string]Tier
	waiting  []*Task
	running  map[string]*inflight
	failedAt map[string]time.Time
	status   map[string]track.FetchState
	results  chan Result
	wg       sync.WaitGroup
	closed   bool

	now func() time.Time
}

// NewScheduler creates a scheduler submitting work to the given runner.
func NewScheduler(runner Runner, c *cache.Cache, cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Scheduler{
		runner:   runner,
		cache:    c,
		cfg:      cfg,
		window:   make(map[string]Tier),
		running:  make(map[string]*inflight),
		failedAt: make(map[string]time.Time),
		status:   make(map[string]track.FetchState),
		results:  make(chan Result, 32),
		now:      time.Now,
	}
}

// Results delivers terminal fetch outcomes to the orchestrator.
func (s *Scheduler) Results() <-chan Result { return s.results }

// SetPriorityWindow recomputes the priority list from the queue's current
// shape: current at tier 0, upcoming (already truncated to the window size,
// in queue order) at tier 1. Waiting tasks for tracks that fell out of the
// window are dropped; in-flight fetches are left to finish so their result
// can be cached for reuse.
func (s *Scheduler) SetPriorityWindow(current string, upcoming []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	window := make(map[string]Tier, len(upcoming)+1)
	if current != "" {
		window[current] = TierCurrent
	}
	for _, id := range upcoming {
		if _, ok := window[id]; !ok {
			window[id] = TierLookahead
		}
	}
	s.window = window

	// Re-tier or drop waiting tasks.
	kept := s.waiting[:0]
	for _, t := range s.waiting {
		tier, ok := window[t.TrackID]
		if !ok {
			delete(s.status, t.TrackID)
			continue
		}
		t.Tier = tier
		kept = append(kept, t)
	}
	s.waiting = kept

	// A running fetch whose track is still in the window must not be
	// aborted by a reshuffle; only its tier may move up.
	for id, inf := range s.running {
		if tier, ok := window[id]; ok && tier < inf.task.Tier {
			inf.task.Tier = tier
		}
	}

	if current != "" {
		s.enqueueLocked(current, TierCurrent)
	}
	for _, id := range upcoming {
		s.enqueueLocked(id, TierLookahead)
	}
	s.dispatchLocked()
}

// Enqueue requests a fetch for a single track at the given tier. It is a
// no-op when a valid artifact is cached, a task for the track is already
// waiting or in flight, or the track is cooling down after repeated
// failures.
func (s *Scheduler) Enqueue(id string, tier Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.window[id]; !ok {
		s.window[id] = tier
	}
	s.enqueueLocked(id, tier)
	s.dispatchLocked()
}

func (s *Scheduler) enqueueLocked(id string, tier Tier) {
	if _, ok := s.cache.Get(id); ok {
		s.status[id] = track.FetchReady
		return
	}
	if inf, ok := s.running[id]; ok {
		if tier < inf.task.Tier {
			inf.task.Tier = tier
		}
		return
	}
	for _, t := range s.waiting {
		if t.TrackID == id {
			if tier < t.Tier {
				t.Tier = tier
			}
			return
		}
	}
	if at, ok := s.failedAt[id]; ok {
		if s.now().Sub(at) < s.cfg.Cooldown {
			s.status[id] = track.FetchFailed
			return
		}
		delete(s.failedAt, id)
	}

	s.waiting = append(s.waiting, &Task{
		ID:      uuid.New(),
		TrackID: id,
		Tier:    tier,
		Attempt: 1,
	})
	s.status[id] = track.FetchPending
}

// dispatchLocked starts waiting tasks while pool slots are free, tier 0
// before tier 1. When the pool is saturated and a tier-0 task is waiting, it
// preempts an in-flight tier-1 fetch; the freed slot is taken when the
// canceled run unwinds.
func (s *Scheduler) dispatchLocked() {
	for {
		idx := s.nextWaitingLocked()
		if idx < 0 {
			return
		}
		if len(s.running) >= s.cfg.MaxConcurrent {
			if s.waiting[idx].Tier == TierCurrent {
				s.preemptLocked()
			}
			return
		}
		t := s.waiting[idx]
		s.waiting = append(s.waiting[:idx], s.waiting[idx+1:]...)
		s.startLocked(t)
	}
}

func (s *Scheduler) nextWaitingLocked() int {
	for i, t := range s.waiting {
		if t.Tier == TierCurrent {
			return i
		}
	}
	if len(s.waiting) > 0 {
		return 0
	}
	return -1
}

// preemptLocked cancels the most recently started tier-1 fetch to make room
// for a tier-0 task. The canceled run is requeued with its attempt count
// unchanged; its partial download is discarded by the fetcher.
func (s *Scheduler) preemptLocked() {
	var victim *inflight
	for _, inf := range s.running {
		if inf.task.Tier != TierLookahead || inf.preempted {
			continue
		}
		if victim == nil || inf.started.After(victim.started) {
			victim = inf
		}
	}
	if victim == nil {
		return
	}
	victim.preempted = true
	victim.cancel()
	zlog.Debug().Str("track", victim.task.TrackID).Msg("preempting lookahead fetch for current track")
}

func (s *Scheduler) startLocked(t *Task) {
	ctx, cancel := context.WithCancel(context.Background())
	s.running[t.TrackID] = &inflight{task: t, cancel: cancel, started: s.now()}
	s.status[t.TrackID] = track.FetchDownloading

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		art, err := s.runner.Run(ctx, *t)
		s.finish(t, art, err)
	}()
}

// finish records a task outcome, requeues retryable or preempted work and
// surfaces terminal results.
func (s *Scheduler) finish(t *Task, art cache.Artifact, err error) {
	s.mu.Lock()
	inf := s.running[t.TrackID]
	delete(s.running, t.TrackID)

	var out *Result
	_, inWindow := s.window[t.TrackID]

	switch {
	case err == nil:
		s.status[t.TrackID] = track.FetchReady
		delete(s.failedAt, t.TrackID)
		out = &Result{TrackID: t.TrackID, Artifact: art}

	case errors.Is(err, context.Canceled):
		if inf != nil && inf.preempted && inWindow {
			// Resubmit at the front so the slot it lost comes back to it.
			t.ID = uuid.New()
			s.waiting = append([]*Task{t}, s.waiting...)
			s.status[t.TrackID] = track.FetchPending
		} else if inWindow {
			s.status[t.TrackID] = track.FetchPending
		} else {
			delete(s.status, t.TrackID)
		}

	case errors.Is(err, ErrTransfer) && t.Attempt < s.cfg.MaxAttempts && inWindow:
		zlog.Warn().Str("track", t.TrackID).Int("attempt", t.Attempt).Err(err).Msg("fetch failed, retrying")
		retry := &Task{ID: uuid.New(), TrackID: t.TrackID, Tier: t.Tier, Attempt: t.Attempt + 1}
		s.waiting = append(s.waiting, retry)
		s.status[t.TrackID] = track.FetchPending

	default:
		zlog.Warn().Str("track", t.TrackID).Int("attempt", t.Attempt).Err(err).Msg("fetch failed permanently")
		s.failedAt[t.TrackID] = s.now()
		s.status[t.TrackID] = track.FetchFailed
		out = &Result{TrackID: t.TrackID, Err: err}
	}

	closed := s.closed
	s.dispatchLocked()
	s.mu.Unlock()

	if out != nil && !closed {
		select {
		case s.results <- *out:
		default:
			// Consumer stopped draining; only happens during shutdown.
			zlog.Debug().Str("track", t.TrackID).Msg("dropped fetch result")
		}
	}
}

// Statuses returns a copy of the per-track fetch states for the rendering
// layer.
func (s *Scheduler) Statuses() map[string]track.FetchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]track.FetchState, len(s.status))
	for id, st := range s.status {
		out[id] = st
	}
	return out
}

// StateFor returns the fetch state of one track.
func (s *Scheduler) StateFor(id string) (track.FetchState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[id]
	return st, ok
}

// InFlight returns the number of running fetch tasks.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Close cancels all work and waits for running tasks to unwind. No results
// are delivered after Close returns.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.waiting = nil
	for _, inf := range s.running {
		inf.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	close(s.results)
}
