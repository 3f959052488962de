package player

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"

	"github.com/seb-lau/tubeamp/internal/media"
)

// pcmStream yields interleaved 16-bit little-endian stereo-or-mono PCM.
type pcmStream interface {
	io.ReadSeeker
	Length() int64
	SampleRate() int
	ChannelCount() int
}

// newPCMStream sniffs the file content and returns a decoder for it.
// Cached artifacts all share one extension, so the format comes from the
// leading bytes rather than the file name.
func newPCMStream(f *os.File) (pcmStream, error) {
	head := make([]byte, media.SniffLen)
	n, err := f.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "sniffing audio format")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch media.Detect(head[:n]) {
	case media.FormatMP3:
		return newMP3Stream(f)
	case media.FormatWAV:
		return newWAVStream(f)
	case media.FormatFLAC:
		return newFLACStream(f)
	case media.FormatOGG:
		return newOGGStream(f)
	default:
		return nil, errors.Newf("unsupported audio content in %s", f.Name())
	}
}

func clamp16(sample int) int16 {
	if sample > 32767 {
		return 32767
	}
	if sample < -32768 {
		return -32768
	}
	return int16(sample)
}

// --- MP3 ---

type mp3Stream struct {
	dec *mp3.Decoder
}

func newMP3Stream(f *os.File) (*mp3Stream, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, errors.Wrap(err, "decoding mp3")
	}
	return &mp3Stream{dec: dec}, nil
}

func (s *mp3Stream) Read(p []byte) (int, error) { return s.dec.Read(p) }
func (s *mp3Stream) Seek(offset int64, whence int) (int64, error) {
	return s.dec.Seek(offset, whence)
}
func (s *mp3Stream) Length() int64     { return s.dec.Length() }
func (s *mp3Stream) SampleRate() int   { return s.dec.SampleRate() }
func (s *mp3Stream) ChannelCount() int { return 2 }

// --- WAV ---

type wavStream struct {
	file         *os.File
	buf          []byte
	pos          int64
	totalBytes   int64
	pcmStart     int64
	sampleRate   int
	channels     int
	srcBitDepth  int
	srcFrameSize int64
}

func newWAVStream(f *os.File) (*wavStream, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, errors.Wrap(err, "reading WAV PCM data")
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	srcFrameSize := int64(channels) * int64(bitDepth) / 8
	totalSourceFrames := dec.PCMLen() / srcFrameSize
	// Output is always 16-bit samples.
	totalBytes := totalSourceFrames * int64(channels) * 2

	pcmStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "locating WAV PCM start")
	}

	return &wavStream{
		file:         f,
		sampleRate:   int(dec.SampleRate),
		channels:     channels,
		srcBitDepth:  bitDepth,
		srcFrameSize: srcFrameSize,
		totalBytes:   totalBytes,
		pcmStart:     pcmStart,
	}, nil
}

func (s *wavStream) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		s.pos += int64(n)
		return n, nil
	}

	srcBytesPerSample := s.srcBitDepth / 8
	numSamples := len(p) / 2
	if numSamples == 0 {
		numSamples = 1
	}
	srcBytes := make([]byte, numSamples*srcBytesPerSample)
	n, err := io.ReadFull(s.file, srcBytes)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	samplesRead := n / srcBytesPerSample
	if samplesRead == 0 {
		return 0, io.EOF
	}

	raw := make([]byte, samplesRead*2)
	for i := 0; i < samplesRead; i++ {
		var sample int
		off := i * srcBytesPerSample
		switch s.srcBitDepth {
		case 8:
			// 8-bit WAV is unsigned
			sample = (int(srcBytes[off]) - 128) << 8
		case 16:
			sample = int(int16(binary.LittleEndian.Uint16(srcBytes[off:])))
		case 24:
			v := int32(srcBytes[off]) | int32(srcBytes[off+1])<<8 | int32(srcBytes[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF // sign extend
			}
			sample = int(v >> 8)
		case 32:
			sample = int(int32(binary.LittleEndian.Uint32(srcBytes[off:])) >> 16)
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(clamp16(sample)))
	}

	written := copy(p, raw)
	if written < len(raw) {
		s.buf = raw[written:]
	}
	s.pos += int64(written)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return written, err
}

func (s *wavStream) Seek(offset int64, whence int) (int64, error) {
	newPos := seekTarget(s.pos, s.totalBytes, offset, whence)

	outputFrameSize := int64(s.channels) * 2
	srcBytePos := newPos / outputFrameSize * s.srcFrameSize
	if _, err := s.file.Seek(s.pcmStart+srcBytePos, io.SeekStart); err != nil {
		return s.pos, err
	}
	s.buf = nil
	s.pos = newPos
	return newPos, nil
}

func (s *wavStream) Length() int64     { return s.totalBytes }
func (s *wavStream) SampleRate() int   { return s.sampleRate }
func (s *wavStream) ChannelCount() int { return s.channels }

// --- FLAC ---

type flacStream struct {
	stream     *flac.Stream
	buf        []byte
	pos        int64
	totalBytes int64
	sampleRate int
	channels   int
	bps        int
}

func newFLACStream(f *os.File) (*flacStream, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, errors.Wrap(err, "decoding FLAC")
	}
	info := stream.Info
	channels := int(info.NChannels)
	return &flacStream{
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   channels,
		bps:        int(info.BitsPerSample),
		totalBytes: int64(info.NSamples) * int64(channels) * 2,
	}, nil
}

func (s *flacStream) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		s.pos += int64(n)
		return n, nil
	}

	frame, err := s.stream.ParseNext()
	if err != nil {
		return 0, err
	}

	nSamples := int(frame.Subframes[0].NSamples)
	raw := make([]byte, nSamples*s.channels*2)
	for i := 0; i < nSamples; i++ {
		for ch := 0; ch < s.channels; ch++ {
			sample := int(frame.Subframes[ch].Samples[i])
			switch {
			case s.bps > 16:
				sample >>= (s.bps - 16)
			case s.bps < 16:
				sample <<= (16 - s.bps)
			}
			offset := (i*s.channels + ch) * 2
			binary.LittleEndian.PutUint16(raw[offset:], uint16(clamp16(sample)))
		}
	}

	written := copy(p, raw)
	if written < len(raw) {
		s.buf = raw[written:]
	}
	s.pos += int64(written)
	return written, nil
}

func (s *flacStream) Seek(offset int64, whence int) (int64, error) {
	newPos := seekTarget(s.pos, s.totalBytes, offset, whence)

	sampleNum := uint64(newPos / (int64(s.channels) * 2))
	if _, err := s.stream.Seek(sampleNum); err != nil {
		return s.pos, err
	}
	s.buf = nil
	s.pos = newPos
	return newPos, nil
}

func (s *flacStream) Length() int64     { return s.totalBytes }
func (s *flacStream) SampleRate() int   { return s.sampleRate }
func (s *flacStream) ChannelCount() int { return s.channels }

// --- OGG Vorbis ---

type oggStream struct {
	reader     *oggvorbis.Reader
	buf        []byte
	pos        int64
	totalBytes int64
	sampleRate int
	channels   int
}

func newOGGStream(f *os.File) (*oggStream, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "decoding OGG")
	}
	channels := reader.Channels()
	return &oggStream{
		reader:     reader,
		sampleRate: reader.SampleRate(),
		channels:   channels,
		totalBytes: reader.Length() * int64(channels) * 2,
	}, nil
}

func (s *oggStream) Read(p []byte) (int, error) {
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		s.pos += int64(n)
		return n, nil
	}

	samples := make([]float32, len(p)/2)
	n, err := s.reader.Read(samples)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := samples[i]
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(v*32767)))
	}

	written := copy(p, raw)
	if written < len(raw) {
		s.buf = raw[written:]
	}
	s.pos += int64(written)
	return written, err
}

func (s *oggStream) Seek(offset int64, whence int) (int64, error) {
	newPos := seekTarget(s.pos, s.totalBytes, offset, whence)

	if err := s.reader.SetPosition(newPos / (int64(s.channels) * 2)); err != nil {
		return s.pos, err
	}
	s.buf = nil
	s.pos = newPos
	return newPos, nil
}

func (s *oggStream) Length() int64     { return s.totalBytes }
func (s *oggStream) SampleRate() int   { return s.sampleRate }
func (s *oggStream) ChannelCount() int { return s.channels }

func seekTarget(pos, total, offset int64, whence int) int64 {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = pos + offset
	case io.SeekEnd:
		newPos = total + offset
	}
	if newPos < 0 {
		newPos = 0
	}
	if newPos > total {
		newPos = total
	}
	return newPos
}
