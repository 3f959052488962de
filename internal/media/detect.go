// Package media identifies audio payloads by content and extension.
package media

import (
	"bytes"
	"strings"
)

// Format is a recognized audio container/codec family.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatWAV
	FormatFLAC
	FormatOGG
	FormatM4A
	FormatWebM
)

// String returns the conventional file extension for the format.
func (f Format) String() string {
	switch f {
	case FormatMP3:
		return ".mp3"
	case FormatWAV:
		return ".wav"
	case FormatFLAC:
		return ".flac"
	case FormatOGG:
		return ".ogg"
	case FormatM4A:
		return ".m4a"
	case FormatWebM:
		return ".webm"
	default:
		return ""
	}
}

// SniffLen is how many leading bytes Detect needs to classify a payload.
const SniffLen = 16

// Detect classifies a payload by its leading bytes. It recognizes the
// formats the player can decode plus M4A and WebM, which stream hosts
// commonly serve but which need an ffmpeg transcode before playback.
// Returns FormatUnknown for anything else.
func Detect(head []byte) Format {
	if len(head) < 4 {
		return FormatUnknown
	}
	switch {
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// Bare MPEG frame sync, no ID3 header.
		return FormatMP3
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")):
		return FormatM4A
	case bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML header, the WebM/Matroska container.
		return FormatWebM
	default:
		return FormatUnknown
	}
}

// IsPlayable reports whether the format can be decoded for local playback.
func IsPlayable(f Format) bool {
	switch f {
	case FormatMP3, FormatWAV, FormatFLAC, FormatOGG:
		return true
	default:
		return false
	}
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// IsSupportedExt returns true if the extension is a playable media format.
func IsSupportedExt(ext string) bool {
	return audioExts[strings.ToLower(ext)]
}
