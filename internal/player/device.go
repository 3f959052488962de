package player

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate   = 44100
	channelCount = 2
	bitDepth     = 2 // 16-bit = 2 bytes
	bytesPerSec  = sampleRate * channelCount * bitDepth
)

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

// The oto context can only be created once per process.
func initOto() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return globalOtoCtx, otoInitErr
}

// countingReader wraps the PCM stream and tracks bytes handed to the
// audio device.
type countingReader struct {
	reader io.ReadSeeker
	pos    int64
	mu     sync.Mutex
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.mu.Lock()
	cr.pos += int64(n)
	cr.mu.Unlock()
	return n, err
}

func (cr *countingReader) Pos() int64 {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.pos
}

func (cr *countingReader) SetPos(pos int64) {
	cr.mu.Lock()
	cr.pos = pos
	cr.mu.Unlock()
}

// OtoDevice plays decoded PCM through the system audio output.
type OtoDevice struct{}

// Start opens the artifact at path and begins playback at the given volume.
func (OtoDevice) Start(path string, volume float64) (Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, err := newPCMStream(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	ctx, err := initOto()
	if err != nil {
		f.Close()
		return nil, err
	}

	cr := &countingReader{reader: stream}
	h := &otoHandle{
		file:   f,
		stream: stream,
		cr:     cr,
		ctx:    ctx,
		volume: volume,
		done:   make(chan struct{}),
	}
	h.player = ctx.NewPlayer(cr)
	h.player.SetVolume(volume)
	h.player.Play()
	go h.monitor()
	return h, nil
}

type otoHandle struct {
	mu     sync.Mutex
	file   *os.File
	stream pcmStream
	cr     *countingReader
	ctx    *oto.Context
	player *oto.Player
	volume float64
	paused bool
	closed bool
	done   chan struct{}
}

func (h *otoHandle) monitor() {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		pos := h.cr.Pos()
		total := h.stream.Length()
		paused := h.paused
		h.mu.Unlock()

		if !paused && pos >= total {
			close(h.done)
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (h *otoHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused && !h.closed {
		h.player.Pause()
		h.paused = true
	}
}

func (h *otoHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused && !h.closed {
		h.player.Play()
		h.paused = false
	}
}

func (h *otoHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	if !h.closed {
		h.player.SetVolume(v)
	}
}

// SeekTo repositions playback at the given offset from the start of the
// track. The oto player buffers ahead, so it is recreated to flush what it
// already pulled.
func (h *otoHandle) SeekTo(offset time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}

	perSec := h.stream.SampleRate() * h.stream.ChannelCount() * bitDepth
	newPos := int64(offset.Seconds() * float64(perSec))
	if newPos < 0 {
		newPos = 0
	}
	if total := h.stream.Length(); newPos > total {
		newPos = total
	}
	// Align to a whole sample frame.
	frame := int64(h.stream.ChannelCount() * bitDepth)
	newPos -= newPos % frame

	if _, err := h.stream.Seek(newPos, io.SeekStart); err != nil {
		return err
	}
	h.cr.SetPos(newPos)

	wasPaused := h.paused
	h.player.Pause()
	h.player = h.ctx.NewPlayer(h.cr)
	h.player.SetVolume(h.volume)
	if !wasPaused {
		h.player.Play()
	}
	return nil
}

// Done closes when the stream has been fully consumed.
func (h *otoHandle) Done() <-chan struct{} { return h.done }

func (h *otoHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.player.Pause()
	h.file.Close()
}
