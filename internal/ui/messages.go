package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/seb-lau/tubeamp/internal/track"
)

type tickMsg time.Time

type searchResultsMsg struct {
	query  string
	tracks []track.Track
	err    error
	// playlist marks an expanded playlist URL; its tracks are queued as a
	// batch instead of being offered for selection.
	playlist bool
}

type exportDoneMsg struct {
	dest string
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
