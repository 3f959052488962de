package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seb-lau/tubeamp/internal/cache"
	"github.com/seb-lau/tubeamp/internal/extract"
	"github.com/seb-lau/tubeamp/internal/orchestrator"
	"github.com/seb-lau/tubeamp/internal/player"
	"github.com/seb-lau/tubeamp/internal/save"
	"github.com/seb-lau/tubeamp/internal/track"
	"github.com/seb-lau/tubeamp/internal/util"
)

// Searcher finds tracks for a query, resolves a pasted URL or ID, or
// expands a playlist URL.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]track.Track, error)
	Lookup(ctx context.Context, urlOrID string) (track.Track, error)
	Playlist(ctx context.Context, url string) ([]track.Track, error)
}

// Options configures the UI model.
type Options struct {
	SeekStep      time.Duration
	VolumeStep    float64
	SearchMax     int
	SaveDir       string
	SearchTimeout time.Duration
	InitialQuery  string
}

// Model is the Bubbletea model for the tubeamp TUI.
type Model struct {
	orch     *orchestrator.Orchestrator
	cache    *cache.Cache
	searcher Searcher
	opts     Options

	snap     orchestrator.Snapshot
	progress progressSpring
	cursor   int
	width    int
	height   int
	quitting bool

	searchMode bool
	searching  bool
	input      textinput.Model
	spin       spinner.Model
	results    []track.Track
	resCursor  int
	searchErr  string

	statusMsg     string
	statusMsgTime time.Time
	exporting     bool
}

// New creates the UI model.
func New(orch *orchestrator.Orchestrator, c *cache.Cache, searcher Searcher, opts Options) Model {
	if opts.SeekStep <= 0 {
		opts.SeekStep = 5 * time.Second
	}
	if opts.VolumeStep <= 0 {
		opts.VolumeStep = 0.05
	}
	if opts.SearchMax <= 0 {
		opts.SearchMax = 10
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 30 * time.Second
	}

	ti := textinput.New()
	ti.Placeholder = "search or paste a URL..."
	ti.CharLimit = 2048
	ti.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	m := Model{
		orch:     orch,
		cache:    c,
		searcher: searcher,
		opts:     opts,
		progress: newProgressSpring(),
		input:    ti,
		spin:     s,
	}
	if q := strings.TrimSpace(opts.InitialQuery); q != "" {
		m.searchMode = true
		m.searching = true
		m.input.SetValue(q)
		m.input.Focus()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), tea.SetWindowTitle("tubeamp")}
	if m.searching {
		cmds = append(cmds, m.spin.Tick, m.runSearch(strings.TrimSpace(m.opts.InitialQuery)))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg)
		}
		return m.updatePlayer(msg)

	case tickMsg:
		m.snap = m.orch.Snapshot()
		if cur := m.snap.Current; cur != nil && cur.Duration > 0 {
			m.progress.update(m.snap.Elapsed.Seconds() / cur.Duration.Seconds())
		} else {
			m.progress = newProgressSpring()
		}
		if n := len(m.snap.Pending); m.cursor >= n {
			m.cursor = n - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		if m.statusMsg != "" && time.Since(m.statusMsgTime) > 5*time.Second {
			m.statusMsg = ""
		}
		return m, tickCmd()

	case searchResultsMsg:
		m.searching = false
		if msg.err != nil {
			m.searchErr = msg.err.Error()
			return m, nil
		}
		if len(msg.tracks) == 0 {
			m.searchErr = fmt.Sprintf("no results for %q", msg.query)
			return m, nil
		}
		if msg.playlist {
			m.orch.Enqueue(msg.tracks...)
			m.statusMsg = fmt.Sprintf("Queued %d tracks", len(msg.tracks))
			m.statusMsgTime = time.Now()
			m.searchMode = false
			m.input.Reset()
			m.input.Blur()
			return m, tea.SetWindowTitle("tubeamp")
		}
		m.results = msg.tracks
		m.resCursor = 0
		return m, nil

	case exportDoneMsg:
		m.exporting = false
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Save failed: %v", msg.err)
		} else {
			m.statusMsg = fmt.Sprintf("Saved to %s", msg.dest)
		}
		m.statusMsgTime = time.Now()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	return m, nil
}

func (m Model) updatePlayer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
	case " ":
		m.orch.TogglePause()
	case "left", "h":
		m.orch.Seek(-m.opts.SeekStep)
	case "right", "l":
		m.orch.Seek(m.opts.SeekStep)
	case "up", "+", "=":
		m.orch.AdjustVolume(m.opts.VolumeStep)
	case "down", "-":
		m.orch.AdjustVolume(-m.opts.VolumeStep)
	case "n":
		m.orch.Next()
	case "p":
		m.orch.Previous()
	case "j":
		if m.cursor < len(m.snap.Pending)-1 {
			m.cursor++
		}
	case "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "d":
		if len(m.snap.Pending) > 0 {
			m.orch.Remove(m.cursor)
		}
	case "c":
		m.orch.Clear()
	case "C":
		m.orch.ClearHistory()
	case "s":
		return m.startExport()
	case "/":
		m.searchMode = true
		m.searchErr = ""
		m.results = nil
		m.input.Focus()
		return m, tea.Batch(textinput.Blink, tea.SetWindowTitle("tubeamp — search"))
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
	case "esc":
		m.searchMode = false
		m.searching = false
		m.results = nil
		m.input.Reset()
		m.input.Blur()
		return m, tea.SetWindowTitle("tubeamp")
	case "enter":
		if len(m.results) > 0 {
			t := m.results[m.resCursor]
			m.orch.Enqueue(t)
			m.statusMsg = fmt.Sprintf("Queued %s", t.Title)
			m.statusMsgTime = time.Now()
			m.searchMode = false
			m.results = nil
			m.input.Reset()
			m.input.Blur()
			return m, tea.SetWindowTitle("tubeamp")
		}
		query := strings.TrimSpace(m.input.Value())
		if query == "" || m.searching {
			return m, nil
		}
		m.searching = true
		m.searchErr = ""
		return m, tea.Batch(m.spin.Tick, m.runSearch(query))
	case "down", "ctrl+n":
		if m.resCursor < len(m.results)-1 {
			m.resCursor++
		}
		return m, nil
	case "up", "ctrl+p":
		if m.resCursor > 0 {
			m.resCursor--
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// runSearch resolves the query off the update loop. Playlist URLs expand
// into a batch; other pasted URLs and bare video IDs skip the search and
// queue directly.
func (m Model) runSearch(query string) tea.Cmd {
	searcher, max, timeout := m.searcher, m.opts.SearchMax, m.opts.SearchTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if extract.IsPlaylistURL(query) {
			tracks, err := searcher.Playlist(ctx, query)
			return searchResultsMsg{query: query, tracks: tracks, err: err, playlist: true}
		}
		if extract.IsVideoID(query) || strings.Contains(query, "://") {
			t, err := searcher.Lookup(ctx, query)
			if err != nil {
				return searchResultsMsg{query: query, err: err}
			}
			return searchResultsMsg{query: query, tracks: []track.Track{t}}
		}
		tracks, err := searcher.Search(ctx, query, max)
		return searchResultsMsg{query: query, tracks: tracks, err: err}
	}
}

func (m Model) startExport() (tea.Model, tea.Cmd) {
	if m.exporting || m.snap.Current == nil {
		return m, nil
	}
	art, ok := m.cache.Get(m.snap.Current.ID)
	if !ok {
		m.statusMsg = "Nothing to save yet"
		m.statusMsgTime = time.Now()
		return m, nil
	}
	m.exporting = true
	m.statusMsg = "Saving..."
	m.statusMsgTime = time.Now()
	cur, dir := *m.snap.Current, m.opts.SaveDir
	return m, func() tea.Msg {
		dest, err := save.Export(art.Path, cur, dir)
		return exportDoneMsg{dest: dest, err: err}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.searchMode {
		return m.viewSearch()
	}
	return m.viewPlayer()
}

func (m Model) viewPlayer() string {
	w := m.width
	if w < 30 {
		w = 50
	}

	var b strings.Builder
	b.WriteString("\n  " + headerStyle.Render("tubeamp") + "\n\n")

	if cur := m.snap.Current; cur != nil {
		b.WriteString("  " + titleStyle.Render(truncate(cur.Title, w-4)) + "\n")
		if cur.Uploader != "" {
			b.WriteString("  " + artistStyle.Render(cur.Uploader) + "\n")
		}
		b.WriteString("\n")
		b.WriteString("  " + m.progressLine(w) + "\n\n")
		b.WriteString("  " + m.statusLine(w) + "\n")
	} else {
		b.WriteString("  " + artistStyle.Render("Nothing playing. Press / to search.") + "\n")
	}

	if m.statusMsg != "" {
		b.WriteString("  " + helpStyle.Render(m.statusMsg) + "\n")
	}
	if m.snap.LastIssue != "" {
		b.WriteString("  " + errorStyle.Render(truncate(m.snap.LastIssue, w-4)) + "\n")
	}

	b.WriteString(m.queuePanel(w))
	if m.snap.CacheLen > 0 {
		b.WriteString("\n  " + helpStyle.Render(fmt.Sprintf("cache: %d tracks, %s", m.snap.CacheLen, util.FormatBytes(m.snap.CacheSize))) + "\n")
	}
	b.WriteString("\n  " + helpStyle.Render(helpText(len(m.snap.Pending) > 0)) + "\n")
	return b.String()
}

func (m Model) progressLine(w int) string {
	elapsed := m.snap.Elapsed
	duration := m.snap.Current.Duration

	var ratio float64
	if duration > 0 {
		ratio = elapsed.Seconds() / duration.Seconds()
	}
	smoothed := ratio
	if m.snap.State == player.StatePlaying {
		smoothed = m.progress.pos
	}

	elapsedStr := timeStyle.Render(util.FormatDuration(elapsed))
	durationStr := timeStyle.Render(util.FormatDuration(duration))
	barWidth := w - len(util.FormatDuration(elapsed)) - len(util.FormatDuration(duration)) - 6
	bar := renderProgressBar(smoothed, barWidth)
	return fmt.Sprintf("%s %s %s", elapsedStr, bar, durationStr)
}

func (m Model) statusLine(w int) string {
	statusIcon, statusText := "▶", "playing"
	if m.snap.State == player.StatePaused {
		statusIcon, statusText = "❚❚", "paused"
	}
	left := fmt.Sprintf("%s  %s", statusIcon, statusText)
	volStr := renderVolumePercent(m.snap.Volume)

	gap := w - len(left) - len(volStr) - 4
	if gap < 2 {
		gap = 2
	}
	return statusStyle.Render(left) + spaces(gap) + statusStyle.Render(volStr)
}

func (m Model) queuePanel(w int) string {
	var b strings.Builder
	if len(m.snap.Pending) > 0 {
		b.WriteString("\n  " + headerStyle.Render(fmt.Sprintf("Up next (%d)", len(m.snap.Pending))) + "\n")
		limit := m.listLimit()
		for i, t := range m.snap.Pending {
			if i >= limit {
				b.WriteString("  " + helpStyle.Render(fmt.Sprintf("… and %d more", len(m.snap.Pending)-limit)) + "\n")
				break
			}
			st, known := m.snap.Fetches[t.ID]
			line := fmt.Sprintf("%s %s", fetchGlyph(st, known), truncate(t.Title, w-10))
			if i == m.cursor {
				b.WriteString("  " + selectedStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString("    " + statusStyle.Render(line) + "\n")
			}
		}
	}
	if n := len(m.snap.History); n > 0 {
		b.WriteString("\n  " + helpStyle.Render(fmt.Sprintf("%d played", n)) + "\n")
	}
	return b.String()
}

// listLimit caps the queue panel so it fits the terminal.
func (m Model) listLimit() int {
	if m.height <= 0 {
		return 10
	}
	limit := m.height - 14
	if limit < 3 {
		limit = 3
	}
	return limit
}

func (m Model) viewSearch() string {
	var b strings.Builder
	b.WriteString("\n  " + headerStyle.Render("tubeamp — search") + "\n\n")
	b.WriteString("  " + m.input.View() + "\n\n")

	switch {
	case m.searching:
		b.WriteString("  " + m.spin.View() + statusStyle.Render(" searching...") + "\n")
	case m.searchErr != "":
		b.WriteString("  " + errorStyle.Render(m.searchErr) + "\n")
	case len(m.results) > 0:
		for i, t := range m.results {
			line := fmt.Sprintf("%s  %s", truncate(t.Title, 60), timeStyle.Render(util.FormatDuration(t.Duration)))
			if t.Uploader != "" {
				line += artistStyle.Render("  " + t.Uploader)
			}
			if i == m.resCursor {
				b.WriteString("  " + selectedStyle.Render("> ") + line + "\n")
			} else {
				b.WriteString("    " + line + "\n")
			}
		}
	}

	b.WriteString("\n  " + helpStyle.Render("enter search/queue  ↑/↓ select  esc back  ctrl+c quit") + "\n")
	return b.String()
}

func helpText(hasQueue bool) string {
	s := "space pause  ←/→ seek  +/- volume  / search"
	if hasQueue {
		s += "  n/p track  j/k scroll  d remove  c clear"
	}
	s += "  s save  q quit"
	return s
}
