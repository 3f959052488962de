package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seb-lau/tubeamp/internal/track"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	searches, err := lru.New[string, []track.Track](searchCacheSize)
	if err != nil {
		t.Fatalf("lru.New: %v", err)
	}
	return &Client{binary: "yt-dlp", searches: searches}
}

// stubRun replaces the subprocess seam and records the argument list of
// every invocation.
func stubRun(t *testing.T, fn func(args []string) (stdout, stderr []byte, err error)) *[][]string {
	t.Helper()
	var calls [][]string
	orig := runYTDLP
	runYTDLP = func(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
		calls = append(calls, args)
		return fn(args)
	}
	t.Cleanup(func() { runYTDLP = orig })
	return &calls
}

func TestParseSearchOutput(t *testing.T) {
	out := []byte(`{"id":"dQw4w9WgXcQ","title":"Never Gonna Give You Up","duration":212,"uploader":"RickAstleyVEVO"}

{"id":"9bZkp7q19f0","title":"Gangnam Style","duration":253.5,"uploader":"officialpsy"}
{"title":"no id, skipped"}
`)

	tracks, err := parseSearchOutput(out)
	if err != nil {
		t.Fatalf("parseSearchOutput() unexpected error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("parseSearchOutput() returned %d tracks, want 2", len(tracks))
	}
	if tracks[0].ID != "dQw4w9WgXcQ" || tracks[0].Uploader != "RickAstleyVEVO" {
		t.Fatalf("unexpected first track: %+v", tracks[0])
	}
	if tracks[0].Duration != 212*time.Second {
		t.Fatalf("duration = %v, want 212s", tracks[0].Duration)
	}
	if tracks[1].Duration != 253500*time.Millisecond {
		t.Fatalf("fractional duration = %v, want 253.5s", tracks[1].Duration)
	}
}

func TestParseSearchOutputBadJSON(t *testing.T) {
	if _, err := parseSearchOutput([]byte("{not json}")); err == nil {
		t.Fatal("expected error for malformed JSON line")
	}
}

func TestVideoJSONDefaults(t *testing.T) {
	got := videoJSON{ID: "abc123def45"}.toTrack()
	if got.Title != "Unknown" || got.Uploader != "Unknown" {
		t.Fatalf("missing fields should default to Unknown, got %+v", got)
	}
}

func TestIsVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{in: "dQw4w9WgXcQ", want: true},
		{in: "a1_b2-c3D4e", want: true},
		{in: "tooshort", want: false},
		{in: "https://youtu.be/dQw4w9WgXcQ", want: false},
		{in: "twelve chars", want: false},
	}
	for _, tc := range cases {
		if got := IsVideoID(tc.in); got != tc.want {
			t.Errorf("IsVideoID(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWatchURL(t *testing.T) {
	want := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	if got := WatchURL("dQw4w9WgXcQ"); got != want {
		t.Fatalf("WatchURL() = %q, want %q", got, want)
	}
}

func TestResolveReturnsFirstStreamURL(t *testing.T) {
	c := newTestClient(t)
	calls := stubRun(t, func([]string) ([]byte, []byte, error) {
		return []byte("https://cdn.example/audio.m4a\nhttps://cdn.example/video.mp4\n"), nil, nil
	})

	url, err := c.Resolve(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}
	if url != "https://cdn.example/audio.m4a" {
		t.Fatalf("Resolve() = %q, want the first format line", url)
	}

	args := (*calls)[0]
	if args[0] != "--get-url" {
		t.Fatalf("args = %v, want --get-url first", args)
	}
	if got := args[len(args)-1]; got != WatchURL("dQw4w9WgXcQ") {
		t.Fatalf("target = %q, want the watch URL", got)
	}
}

func TestResolveSurfacesStderr(t *testing.T) {
	c := newTestClient(t)
	stubRun(t, func([]string) ([]byte, []byte, error) {
		return nil, []byte("WARNING: noise\nERROR: Video unavailable"), errors.New("exit status 1")
	})

	_, err := c.Resolve(context.Background(), "dQw4w9WgXcQ")
	if err == nil || !errors.Is(err, ErrResolve) {
		t.Fatalf("Resolve() error = %v, want ErrResolve mark", err)
	}
	if !strings.Contains(err.Error(), "Video unavailable") {
		t.Fatalf("error %q should carry the stderr ERROR line", err)
	}
}

func TestPlaylistUsesFlatExtraction(t *testing.T) {
	c := newTestClient(t)
	calls := stubRun(t, func([]string) ([]byte, []byte, error) {
		out := `{"id":"aaaaaaaaaaa","title":"one"}` + "\n" + `{"id":"bbbbbbbbbbb","title":"two"}` + "\n"
		return []byte(out), nil, nil
	})

	tracks, err := c.Playlist(context.Background(), "https://www.youtube.com/playlist?list=PLxyz")
	if err != nil {
		t.Fatalf("Playlist() unexpected error: %v", err)
	}
	if len(tracks) != 2 || tracks[0].ID != "aaaaaaaaaaa" || tracks[1].ID != "bbbbbbbbbbb" {
		t.Fatalf("Playlist() = %v, want both entries in order", tracks)
	}

	joined := strings.Join((*calls)[0], " ")
	if !strings.Contains(joined, "--flat-playlist") {
		t.Fatalf("args %q missing --flat-playlist", joined)
	}
	if strings.Contains(joined, "--no-playlist") {
		t.Fatalf("args %q must not suppress playlist expansion", joined)
	}
}

func TestSearchCachesResults(t *testing.T) {
	c := newTestClient(t)
	calls := stubRun(t, func([]string) ([]byte, []byte, error) {
		return []byte(`{"id":"dQw4w9WgXcQ","title":"hit"}`), nil, nil
	})

	for range 2 {
		tracks, err := c.Search(context.Background(), "some song", 5)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("Search() = %v, want one track", tracks)
		}
	}
	if n := len(*calls); n != 1 {
		t.Fatalf("yt-dlp invoked %d times, want 1 (second hit cached)", n)
	}
}

func TestIsPlaylistURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{in: "https://www.youtube.com/playlist?list=PLxyz", want: true},
		{in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=RDdQw4w9WgXcQ", want: true},
		{in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: false},
		{in: "https://youtu.be/dQw4w9WgXcQ", want: false},
		{in: "playlist songs to code to", want: false},
	}
	for _, tc := range cases {
		if got := IsPlaylistURL(tc.in); got != tc.want {
			t.Errorf("IsPlaylistURL(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFirstLinePrefersErrorLine(t *testing.T) {
	stderr := "WARNING: something minor\nERROR: Video unavailable\nmore noise"
	if got := firstLine(stderr); got != "Video unavailable" {
		t.Fatalf("firstLine() = %q, want %q", got, "Video unavailable")
	}
}
