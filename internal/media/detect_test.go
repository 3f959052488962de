package media

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want Format
	}{
		{name: "id3 mp3", head: []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), want: FormatMP3},
		{name: "bare mpeg frame", head: []byte{0xFF, 0xFB, 0x90, 0x00, 0x00, 0x00}, want: FormatMP3},
		{name: "wav", head: []byte("RIFF\x24\x08\x00\x00WAVEfmt "), want: FormatWAV},
		{name: "flac", head: []byte("fLaC\x00\x00\x00\x22"), want: FormatFLAC},
		{name: "ogg", head: []byte("OggS\x00\x02\x00\x00"), want: FormatOGG},
		{name: "m4a", head: []byte("\x00\x00\x00\x20ftypM4A \x00\x00\x00\x00"), want: FormatM4A},
		{name: "webm", head: []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42, 0x86, 0x81}, want: FormatWebM},
		{name: "html error page", head: []byte("<!DOCTYPE html><ht"), want: FormatUnknown},
		{name: "riff but not wave", head: []byte("RIFF\x24\x08\x00\x00AVI LIST"), want: FormatUnknown},
		{name: "too short", head: []byte("ID"), want: FormatUnknown},
	}

	for _, tc := range cases {
		if got := Detect(tc.head); got != tc.want {
			t.Errorf("%s: Detect() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsPlayable(t *testing.T) {
	if !IsPlayable(FormatMP3) || !IsPlayable(FormatOGG) {
		t.Fatal("expected decodable formats to be playable")
	}
	if IsPlayable(FormatM4A) {
		t.Fatal("m4a requires external conversion, must not be playable")
	}
	if IsPlayable(FormatUnknown) {
		t.Fatal("unknown format must not be playable")
	}
}

func TestIsSupportedExt(t *testing.T) {
	if !IsSupportedExt(".MP3") {
		t.Fatal("extension check should be case-insensitive")
	}
	if IsSupportedExt(".m4b") {
		t.Fatal(".m4b is not playable")
	}
}
