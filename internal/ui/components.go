package ui

import (
	"fmt"
	"strings"

	"github.com/seb-lau/tubeamp/internal/track"
)

func renderProgressBar(ratio float64, width int) string {
	if width < 10 {
		width = 10
	}
	barWidth := width - 2 // leave some margin

	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio * float64(barWidth))
	return strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
}

func renderVolumePercent(vol float64) string {
	return fmt.Sprintf("vol %d%%", int(vol*100))
}

// fetchGlyph marks a pending track with its download progress.
func fetchGlyph(st track.FetchState, known bool) string {
	if !known {
		return " "
	}
	switch st {
	case track.FetchDownloading:
		return "↓"
	case track.FetchReady:
		return "✓"
	case track.FetchFailed:
		return "✗"
	default:
		return "·"
	}
}

func spaces(n int) string {
	if n < 0 {
		n = 0
	}
	return strings.Repeat(" ", n)
}

func truncate(s string, max int) string {
	if max <= 1 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
