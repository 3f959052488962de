// Package fetch acquires audio artifacts for tracks: a scheduler decides
// what to fetch and in what order, and a bounded pool of workers performs
// the resolve-download-validate pipeline.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/cache"
	"github.com/seb-lau/tubeamp/internal/media"
)

// Error marks for the fetch pipeline. ErrTransfer failures are transient and
// retried; the other two are treated as permanent for the track.
var (
	ErrResolution = errors.New("track resolution failed")
	ErrTransfer   = errors.New("audio transfer failed")
	ErrValidation = errors.New("payload is not decodable audio")
)

// Resolver maps a track ID to a direct byte-source URL.
type Resolver interface {
	Resolve(ctx context.Context, trackID string) (string, error)
}

const downloadUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

// Fetcher executes a single fetch task: resolve the ID, download the bytes
// into a staging file, verify the payload is audio and publish it to the
// cache. A failed or canceled run never leaves a visible artifact.
type Fetcher struct {
	resolver Resolver
	cache    *cache.Cache
	client   *http.Client
	timeout  time.Duration
}

// NewFetcher builds a fetcher with a per-task timeout covering resolution
// and transfer together.
func NewFetcher(resolver Resolver, c *cache.Cache, timeout time.Duration) *Fetcher {
	return &Fetcher{
		resolver: resolver,
		cache:    c,
		client:   &http.Client{},
		timeout:  timeout,
	}
}

// Run performs one fetch task. Exactly one network transfer happens per
// successful run. Context cancellation aborts the transfer and discards the
// staging file.
func (f *Fetcher) Run(ctx context.Context, task Task) (cache.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	url, err := f.resolver.Resolve(ctx, task.TrackID)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return cache.Artifact{}, errors.Mark(err, ErrTransfer)
		}
		if ctx.Err() != nil {
			return cache.Artifact{}, ctx.Err()
		}
		return cache.Artifact{}, errors.Mark(err, ErrResolution)
	}

	staging, format, err := f.download(ctx, url, task.TrackID)
	if err != nil {
		return cache.Artifact{}, err
	}

	if !media.IsPlayable(format) {
		converted, terr := transcodeToWAV(ctx, staging)
		os.Remove(staging)
		if terr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return cache.Artifact{}, ctx.Err()
			}
			return cache.Artifact{}, errors.Mark(terr, ErrValidation)
		}
		staging = converted
	}

	art, err := f.cache.Put(task.TrackID, staging, true)
	if err != nil {
		return cache.Artifact{}, errors.Mark(err, ErrValidation)
	}
	return art, nil
}

// download streams the URL into a staging file, sniffing the leading bytes
// to confirm the payload is audio before committing to the transfer.
func (f *Fetcher) download(ctx context.Context, url, trackID string) (string, media.Format, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", media.FormatUnknown, errors.Mark(err, ErrTransfer)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", media.FormatUnknown, ctx.Err()
		}
		return "", media.FormatUnknown, errors.Mark(err, ErrTransfer)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", media.FormatUnknown, errors.Mark(errors.Newf("unexpected status %s", resp.Status), ErrTransfer)
	}

	head := make([]byte, media.SniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", media.FormatUnknown, errors.Mark(errors.Wrap(err, "reading payload head"), ErrTransfer)
	}
	head = head[:n]

	format := media.Detect(head)
	if format == media.FormatUnknown {
		return "", format, errors.Mark(errors.New("unrecognized payload"), ErrValidation)
	}

	staging := f.cache.StagingPath(trackID)
	out, err := os.Create(staging)
	if err != nil {
		return "", format, errors.Mark(err, ErrTransfer)
	}

	written, copyErr := writeBody(out, head, resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(staging)
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", format, ctx.Err()
		}
		return "", format, errors.Mark(errors.CombineErrors(copyErr, closeErr), ErrTransfer)
	}
	if written == 0 {
		os.Remove(staging)
		return "", format, errors.Mark(errors.New("empty payload"), ErrValidation)
	}

	zlog.Debug().Str("track", trackID).Int64("bytes", written).Str("format", format.String()).Msg("transfer complete")
	return staging, format, nil
}

func writeBody(out *os.File, head []byte, body io.Reader) (int64, error) {
	n, err := out.Write(head)
	if err != nil {
		return int64(n), err
	}
	rest, err := io.Copy(out, body)
	return int64(n) + rest, err
}
