package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/seb-lau/tubeamp/internal/orchestrator"
	"github.com/seb-lau/tubeamp/internal/queue"
	"github.com/seb-lau/tubeamp/internal/track"
)

type fakeSearcher struct {
	results   []track.Track
	err       error
	lookups   []string
	queries   []string
	playlists []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, max int) ([]track.Track, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func (s *fakeSearcher) Lookup(ctx context.Context, urlOrID string) (track.Track, error) {
	s.lookups = append(s.lookups, urlOrID)
	if s.err != nil {
		return track.Track{}, s.err
	}
	return s.results[0], s.err
}

func (s *fakeSearcher) Playlist(ctx context.Context, url string) ([]track.Track, error) {
	s.playlists = append(s.playlists, url)
	return s.results, s.err
}

func newTestModel(searcher *fakeSearcher) Model {
	orch := orchestrator.New(queue.New(10), nil, nil, nil, nil, orchestrator.Config{})
	return New(orch, nil, searcher, Options{})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestSlashOpensSearchAndEscCloses(t *testing.T) {
	m := newTestModel(&fakeSearcher{})

	next, _ := m.Update(key("/"))
	m = next.(Model)
	if !m.searchMode {
		t.Fatal("slash should enter search mode")
	}

	next, _ = m.Update(key("esc"))
	m = next.(Model)
	if m.searchMode {
		t.Fatal("esc should leave search mode")
	}
}

func TestEnterRunsSearch(t *testing.T) {
	m := newTestModel(&fakeSearcher{})
	next, _ := m.Update(key("/"))
	m = next.(Model)
	m.input.SetValue("never gonna give you up")

	next, cmd := m.Update(key("enter"))
	m = next.(Model)
	if !m.searching {
		t.Fatal("enter with a query should start a search")
	}
	if cmd == nil {
		t.Fatal("expected a search command")
	}
}

func TestSearchResultsNavigationAndQueue(t *testing.T) {
	m := newTestModel(&fakeSearcher{})
	next, _ := m.Update(key("/"))
	m = next.(Model)

	tracks := []track.Track{
		{ID: "aaaaaaaaaaa", Title: "first"},
		{ID: "bbbbbbbbbbb", Title: "second"},
	}
	next, _ = m.Update(searchResultsMsg{query: "q", tracks: tracks})
	m = next.(Model)
	if len(m.results) != 2 {
		t.Fatalf("results = %d, want 2", len(m.results))
	}

	next, _ = m.Update(key("down"))
	m = next.(Model)
	if m.resCursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.resCursor)
	}

	next, _ = m.Update(key("enter"))
	m = next.(Model)
	if m.searchMode {
		t.Fatal("queueing a result should close search mode")
	}
	if !strings.Contains(m.statusMsg, "second") {
		t.Fatalf("statusMsg = %q, want the queued title", m.statusMsg)
	}
}

func TestPlaylistURLQueuesAllTracks(t *testing.T) {
	searcher := &fakeSearcher{results: []track.Track{
		{ID: "aaaaaaaaaaa", Title: "one"},
		{ID: "bbbbbbbbbbb", Title: "two"},
		{ID: "ccccccccccc", Title: "three"},
	}}
	m := newTestModel(searcher)
	next, _ := m.Update(key("/"))
	m = next.(Model)

	msg, ok := m.runSearch("https://www.youtube.com/playlist?list=PLxyz")().(searchResultsMsg)
	if !ok || !msg.playlist {
		t.Fatalf("runSearch result = %#v, want a playlist searchResultsMsg", msg)
	}
	if len(searcher.playlists) != 1 || len(searcher.queries) != 0 || len(searcher.lookups) != 0 {
		t.Fatalf("playlist URL routed wrong: %+v", searcher)
	}

	next, _ = m.Update(msg)
	m = next.(Model)
	if m.searchMode {
		t.Fatal("queueing a playlist should close search mode")
	}
	if !strings.Contains(m.statusMsg, "3 tracks") {
		t.Fatalf("statusMsg = %q, want the queued count", m.statusMsg)
	}
}

func TestInitialQueryOpensSearch(t *testing.T) {
	searcher := &fakeSearcher{results: []track.Track{{ID: "ccccccccccc", Title: "hit"}}}
	orch := orchestrator.New(queue.New(10), nil, nil, nil, nil, orchestrator.Config{})
	m := New(orch, nil, searcher, Options{InitialQuery: "some song"})

	if !m.searchMode || !m.searching {
		t.Fatal("an initial query should start in search mode")
	}
	if cmd := m.Init(); cmd == nil {
		t.Fatal("Init should return the search command")
	}
	if got := m.input.Value(); got != "some song" {
		t.Fatalf("input = %q, want the query", got)
	}
}

func TestSearchErrorShown(t *testing.T) {
	m := newTestModel(&fakeSearcher{})
	m.searchMode = true
	m.searching = true

	next, _ := m.Update(searchResultsMsg{query: "q", err: context.DeadlineExceeded})
	m = next.(Model)
	if m.searching {
		t.Fatal("error should end the searching state")
	}
	if m.searchErr == "" {
		t.Fatal("expected an error message")
	}
}

func TestEmptyResultsShowNotice(t *testing.T) {
	m := newTestModel(&fakeSearcher{})
	m.searchMode = true
	m.searching = true

	next, _ := m.Update(searchResultsMsg{query: "obscure"})
	m = next.(Model)
	if !strings.Contains(m.searchErr, "obscure") {
		t.Fatalf("searchErr = %q, want mention of the query", m.searchErr)
	}
}

func TestFetchGlyphs(t *testing.T) {
	tests := []struct {
		st    track.FetchState
		known bool
		want  string
	}{
		{track.FetchPending, true, "·"},
		{track.FetchDownloading, true, "↓"},
		{track.FetchReady, true, "✓"},
		{track.FetchFailed, true, "✗"},
		{track.FetchPending, false, " "},
	}
	for _, tt := range tests {
		if got := fetchGlyph(tt.st, tt.known); got != tt.want {
			t.Errorf("fetchGlyph(%v, %v) = %q, want %q", tt.st, tt.known, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactlyten", 10, "exactlyten"},
		{"a longer string", 8, "a longe…"},
		{"ünïcödé tïtle", 8, "ünïcödé…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestProgressBarBounds(t *testing.T) {
	for _, ratio := range []float64{-0.5, 0, 0.5, 1, 1.5} {
		bar := renderProgressBar(ratio, 40)
		if n := len([]rune(bar)); n != 38 {
			t.Errorf("bar width for ratio %v = %d, want 38", ratio, n)
		}
	}
}

func TestProgressSpringSnapsBackward(t *testing.T) {
	p := newProgressSpring()
	for range 20 {
		p.update(0.8)
	}
	if p.pos <= 0 {
		t.Fatal("spring should have moved forward")
	}
	if got := p.update(0.1); got != 0.1 {
		t.Fatalf("backward jump = %v, want snap to 0.1", got)
	}
}
