package player

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/track"
)

// ErrDecode marks artifacts the audio device could not open.
var ErrDecode = errors.New("undecodable artifact")

// ErrBusy is returned when Load is called while a track is still loaded.
var ErrBusy = errors.New("engine not stopped")

// State is the playback engine state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Handle controls one playing track on the audio device.
type Handle interface {
	Pause()
	Resume()
	SetVolume(v float64)
	SeekTo(offset time.Duration) error
	Done() <-chan struct{}
	Close()
}

// Device starts playback of an artifact file.
type Device interface {
	Start(path string, volume float64) (Handle, error)
}

// EventType identifies engine notifications.
type EventType int

const (
	// EventStarted fires when a track begins playing.
	EventStarted EventType = iota
	// EventEnded fires when a track plays to completion.
	EventEnded
)

// Event is a playback notification.
type Event struct {
	Type    EventType
	TrackID string
}

// Engine drives the audio device through a stopped/playing/paused state
// machine and keeps the elapsed-time accounting. Elapsed time is derived
// from the wall clock, not from device buffer positions: audio pipelines
// buffer ahead, so byte counts overstate what the listener has heard.
type Engine struct {
	mu      sync.Mutex
	device  Device
	handle  Handle
	state   State
	current *track.Track

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	seekOffset  time.Duration

	volume float64
	gen    int
	timer  *time.Timer
	events chan Event
	now    func() time.Time
}

// NewEngine creates a stopped Engine on the given device.
func NewEngine(device Device, volume float64) *Engine {
	return &Engine{
		device: device,
		volume: clampVolume(volume),
		events: make(chan Event, 16),
		now:    time.Now,
	}
}

// Events returns the engine notification channel.
func (e *Engine) Events() <-chan Event { return e.events }

// Load starts playback of the artifact at path for the given track. It is
// only valid while stopped; the caller stops the engine first when
// switching tracks.
func (e *Engine) Load(t track.Track, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return errors.Mark(errors.Newf("load %s while %s", t.ID, e.state), ErrBusy)
	}

	h, err := e.device.Start(path, e.volume)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "starting %s", t.ID), ErrDecode)
	}

	cur := t
	e.handle = h
	e.current = &cur
	e.state = StatePlaying
	e.startedAt = e.now()
	e.pausedTotal = 0
	e.seekOffset = 0
	e.gen++

	gen := e.gen
	go e.watchDone(h.Done(), gen)
	e.armTimerLocked(gen)

	zlog.Debug().Str("track", t.ID).Dur("duration", t.Duration).Msg("playback started")
	e.emit(Event{Type: EventStarted, TrackID: t.ID})
	return nil
}

// watchDone waits for the device to drain the track. The generation guard
// drops signals from handles that were already replaced.
func (e *Engine) watchDone(done <-chan struct{}, gen int) {
	<-done
	e.complete(gen)
}

// armTimerLocked schedules completion at the track's nominal end. The
// device Done signal usually wins; the timer covers artifacts whose decoded
// length disagrees with the reported duration.
func (e *Engine) armTimerLocked(gen int) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.current == nil || e.current.Duration <= 0 {
		return
	}
	remaining := e.current.Duration - e.elapsedLocked()
	if remaining < 0 {
		remaining = 0
	}
	e.timer = time.AfterFunc(remaining+time.Second, func() { e.complete(gen) })
}

func (e *Engine) complete(gen int) {
	e.mu.Lock()
	if gen != e.gen || e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	id := e.current.ID
	e.stopLocked()
	e.mu.Unlock()

	zlog.Debug().Str("track", id).Msg("playback finished")
	e.emit(Event{Type: EventEnded, TrackID: id})
}

// TogglePause flips between playing and paused. No-op while stopped.
func (e *Engine) TogglePause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		e.handle.Pause()
		e.pausedAt = e.now()
		e.state = StatePaused
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	case StatePaused:
		e.pausedTotal += e.now().Sub(e.pausedAt)
		e.handle.Resume()
		e.state = StatePlaying
		e.armTimerLocked(e.gen)
	}
}

// Seek moves playback by delta from the current position, clamped to the
// track bounds. Seeking at or past the end completes the track.
func (e *Engine) Seek(delta time.Duration) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}

	target := e.elapsedLocked() + delta
	if target < 0 {
		target = 0
	}
	dur := e.current.Duration
	if dur > 0 && target >= dur {
		gen := e.gen
		e.mu.Unlock()
		e.complete(gen)
		return
	}

	if err := e.handle.SeekTo(target); err != nil {
		zlog.Warn().Err(err).Str("track", e.current.ID).Msg("seek failed")
		e.mu.Unlock()
		return
	}

	// Rebase the clock at the seek target.
	now := e.now()
	e.startedAt = now
	e.pausedTotal = 0
	e.seekOffset = target
	if e.state == StatePaused {
		e.pausedAt = now
	} else {
		e.armTimerLocked(e.gen)
	}
	e.mu.Unlock()
}

// Elapsed returns how much of the track the listener has heard.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsedLocked()
}

func (e *Engine) elapsedLocked() time.Duration {
	if e.state == StateStopped {
		return 0
	}
	ref := e.now()
	if e.state == StatePaused {
		ref = e.pausedAt
	}
	elapsed := ref.Sub(e.startedAt) - e.pausedTotal + e.seekOffset
	if elapsed < 0 {
		elapsed = 0
	}
	if dur := e.current.Duration; dur > 0 && elapsed > dur {
		elapsed = dur
	}
	return elapsed
}

// State returns the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the loaded track, or nil while stopped.
func (e *Engine) Current() *track.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	t := *e.current
	return &t
}

// Volume returns the volume in [0, 1].
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetVolume sets the volume, clamped to [0, 1]. It applies immediately to
// the playing track and persists across loads.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clampVolume(v)
	if e.handle != nil && e.state != StateStopped {
		e.handle.SetVolume(e.volume)
	}
}

// AdjustVolume changes the volume by delta.
func (e *Engine) AdjustVolume(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clampVolume(e.volume + delta)
	if e.handle != nil && e.state != StateStopped {
		e.handle.SetVolume(e.volume)
	}
}

// Stop unloads the current track without emitting an end event.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.state == StateStopped {
		return
	}
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.handle.Close()
	e.handle = nil
	e.current = nil
	e.state = StateStopped
	e.pausedTotal = 0
	e.seekOffset = 0
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		zlog.Debug().Str("track", ev.TrackID).Msg("dropping engine event, consumer stalled")
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
