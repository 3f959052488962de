// Package extract resolves track IDs and search queries against the remote
// video platform through a yt-dlp subprocess. Calls are slow and fallible;
// callers bound them with a context.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/track"
)

// ErrResolve marks failures to map a track ID to a byte source. Typically
// permanent for that track (deleted or region-locked content).
var ErrResolve = errors.New("could not resolve track to a stream")

const searchCacheSize = 64

var (
	videoIDPattern  = regexp.MustCompile(`^[\w-]{11}$`)
	playlistPattern = regexp.MustCompile(`[?&]list=|/playlist\b`)
)

// Seam for tests.
var runYTDLP = func(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.Bytes(), errOut.Bytes(), err
}

// Client shells out to yt-dlp. The zero value is not usable; construct with
// New so the binary is located up front.
type Client struct {
	binary     string
	cookieArgs []string

	searches *lru.Cache[string, []track.Track]
}

// Options configures the extractor client.
type Options struct {
	Binary      string // yt-dlp executable name or path
	CookiesFrom string // optional --cookies-from-browser value
}

// New locates the yt-dlp binary and prepares the client.
func New(opts Options) (*Client, error) {
	name := opts.Binary
	if name == "" {
		name = "yt-dlp"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, errors.Newf("%s not found. Install it:\n  macOS:  brew install yt-dlp\n  Linux:  sudo apt install yt-dlp  (or pip install yt-dlp)", name)
	}

	var cookieArgs []string
	if opts.CookiesFrom != "" {
		cookieArgs = []string{"--cookies-from-browser", opts.CookiesFrom}
	}

	searches, err := lru.New[string, []track.Track](searchCacheSize)
	if err != nil {
		return nil, err
	}

	return &Client{binary: path, cookieArgs: cookieArgs, searches: searches}, nil
}

// videoJSON is the subset of yt-dlp's --dump-json output we consume.
type videoJSON struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Uploader string  `json:"uploader"`
}

func (v videoJSON) toTrack() track.Track {
	title := v.Title
	if title == "" {
		title = "Unknown"
	}
	uploader := v.Uploader
	if uploader == "" {
		uploader = "Unknown"
	}
	return track.Track{
		ID:       v.ID,
		Title:    title,
		Duration: time.Duration(v.Duration * float64(time.Second)),
		Uploader: uploader,
	}
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// IsVideoID reports whether s looks like a bare video ID.
func IsVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// IsPlaylistURL reports whether s points at a playlist or mix rather than a
// single video.
func IsPlaylistURL(s string) bool {
	return strings.Contains(s, "://") && playlistPattern.MatchString(s)
}

// Resolve maps a track ID to a direct audio stream URL. The returned URL
// expires after a few hours, so it is resolved per fetch rather than stored
// on the track.
func (c *Client) Resolve(ctx context.Context, trackID string) (string, error) {
	args := append([]string{"--get-url", "-f", "bestaudio/best", "--no-playlist"}, c.cookieArgs...)
	args = append(args, WatchURL(trackID))

	out, err := c.run(ctx, args)
	if err != nil {
		return "", errors.Mark(err, ErrResolve)
	}
	url := strings.TrimSpace(string(out))
	if url == "" {
		return "", errors.Mark(errors.New("yt-dlp returned no stream URL"), ErrResolve)
	}
	// Multiple format lines can come back; the first is the selected one.
	if i := strings.IndexByte(url, '\n'); i >= 0 {
		url = url[:i]
	}
	return url, nil
}

// Search runs a remote search and returns up to max tracks in result order.
// Results are cached per (query, max) since repeated searches are common
// while browsing.
func (c *Client) Search(ctx context.Context, query string, max int) ([]track.Track, error) {
	if max <= 0 {
		max = 10
	}
	key := fmt.Sprintf("%d:%s", max, strings.ToLower(strings.TrimSpace(query)))
	if hit, ok := c.searches.Get(key); ok {
		return hit, nil
	}

	args := append([]string{
		"--dump-json", "--skip-download", "--flat-playlist", "--no-playlist",
	}, c.cookieArgs...)
	args = append(args, fmt.Sprintf("ytsearch%d:%s", max, query))

	out, err := c.run(ctx, args)
	if err != nil {
		return nil, errors.Wrap(err, "search failed")
	}

	tracks, err := parseSearchOutput(out)
	if err != nil {
		return nil, err
	}
	c.searches.Add(key, tracks)
	zlog.Debug().Str("query", query).Int("results", len(tracks)).Msg("search completed")
	return tracks, nil
}

// Playlist expands a playlist or mix URL into its tracks in playlist order.
// Flat extraction reads one metadata line per entry without resolving the
// individual videos, so large playlists stay cheap.
func (c *Client) Playlist(ctx context.Context, url string) ([]track.Track, error) {
	args := append([]string{"--dump-json", "--skip-download", "--flat-playlist"}, c.cookieArgs...)
	args = append(args, url)

	out, err := c.run(ctx, args)
	if err != nil {
		return nil, errors.Wrap(err, "playlist expansion failed")
	}

	tracks, err := parseSearchOutput(out)
	if err != nil {
		return nil, err
	}
	zlog.Debug().Str("url", url).Int("entries", len(tracks)).Msg("playlist expanded")
	return tracks, nil
}

// Lookup fetches metadata for a single URL or video ID.
func (c *Client) Lookup(ctx context.Context, urlOrID string) (track.Track, error) {
	target := urlOrID
	if IsVideoID(urlOrID) {
		target = WatchURL(urlOrID)
	}
	args := append([]string{"-j", "--no-playlist"}, c.cookieArgs...)
	args = append(args, target)

	out, err := c.run(ctx, args)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "lookup failed")
	}

	var v videoJSON
	if err := json.Unmarshal(bytes.TrimSpace(out), &v); err != nil {
		return track.Track{}, errors.Wrap(err, "parsing yt-dlp output")
	}
	if v.ID == "" {
		return track.Track{}, errors.New("yt-dlp output missing video id")
	}
	return v.toTrack(), nil
}

func (c *Client) run(ctx context.Context, args []string) ([]byte, error) {
	stdout, stderr, err := runYTDLP(ctx, c.binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := firstLine(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.Newf("yt-dlp: %s", msg)
	}
	return stdout, nil
}

func parseSearchOutput(out []byte) ([]track.Track, error) {
	var tracks []track.Track
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var v videoJSON
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, errors.Wrap(err, "parsing search result")
		}
		if v.ID == "" {
			continue
		}
		tracks = append(tracks, v.toTrack())
	}
	return tracks, scanner.Err()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	// yt-dlp prefixes real failures with "ERROR:"; prefer that line.
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
