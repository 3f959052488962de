package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/seb-lau/tubeamp/internal/cache"
)

// mp3Payload starts with an ID3v2 header so content sniffing accepts it.
var mp3Payload = append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), strings.Repeat("x", 256)...)

type stubResolver struct {
	url string
	err error
}

func (r stubResolver) Resolve(ctx context.Context, trackID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.url, nil
}

func writeArtifact(t *testing.T, c *cache.Cache, id string) cache.Artifact {
	t.Helper()
	staging := c.StagingPath(id)
	require.NoError(t, os.WriteFile(staging, mp3Payload, 0o644))
	art, err := c.Put(id, staging, true)
	require.NoError(t, err)
	return art
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	return c
}

func TestFetcherPublishesArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mp3Payload)
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(stubResolver{url: srv.URL}, c, 5*time.Second)

	art, err := f.Run(context.Background(), Task{TrackID: "abcdefghijk"})
	require.NoError(t, err)
	require.Equal(t, "abcdefghijk", art.TrackID)
	require.True(t, art.Validated)
	require.EqualValues(t, len(mp3Payload), art.Size)

	got, ok := c.Get("abcdefghijk")
	require.True(t, ok)
	require.Equal(t, art.Path, got.Path)
}

func TestFetcherRejectsNonAudioPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>nope</body></html>"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(stubResolver{url: srv.URL}, c, 5*time.Second)

	_, err := f.Run(context.Background(), Task{TrackID: "abcdefghijk"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	_, ok := c.Get("abcdefghijk")
	require.False(t, ok)
	requireNoStagingLeft(t, c.Dir())
}

func TestFetcherMapsServerErrorToTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(stubResolver{url: srv.URL}, c, 5*time.Second)

	_, err := f.Run(context.Background(), Task{TrackID: "abcdefghijk"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransfer))
}

func TestFetcherMapsResolveFailure(t *testing.T) {
	c := newTestCache(t)
	f := NewFetcher(stubResolver{err: errors.New("video unavailable")}, c, 5*time.Second)

	_, err := f.Run(context.Background(), Task{TrackID: "abcdefghijk"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResolution))
}

func TestFetcherTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(stubResolver{url: srv.URL}, c, 50*time.Millisecond)

	_, err := f.Run(context.Background(), Task{TrackID: "abcdefghijk"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransfer))
}

func TestFetcherCancellationLeavesNoStaging(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(mp3Payload[:16])
		w.(http.Flusher).Flush()
		cancel()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestCache(t)
	f := NewFetcher(stubResolver{url: srv.URL}, c, 5*time.Second)

	_, err := f.Run(ctx, Task{TrackID: "abcdefghijk"})
	require.ErrorIs(t, err, context.Canceled)
	requireNoStagingLeft(t, c.Dir())
}

func requireNoStagingLeft(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.part"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}
