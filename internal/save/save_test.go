package save

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Never Gonna Give You Up", "Never Gonna Give You Up"},
		{`a/b\c:d*e?f"g<h>i|j`, "abcdefghij"},
		{"  padded  ", "padded"},
		{`///`, "track"},
		{"", "track"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
