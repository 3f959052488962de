package fetch

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Seams for tests.
var (
	ffmpegLookPath = exec.LookPath
	ffmpegRun      = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdin = nil
		return cmd.CombinedOutput()
	}
)

// transcodeToWAV converts a downloaded container the player cannot decode
// (M4A, WebM) into WAV next to the staging file. The caller removes the
// source; the returned path feeds into the cache publish.
func transcodeToWAV(ctx context.Context, src string) (string, error) {
	ffmpeg, err := ffmpegLookPath("ffmpeg")
	if err != nil {
		return "", errors.New("ffmpeg not found (required for m4a/webm streams)")
	}

	out := src + ".wav"
	output, err := ffmpegRun(ctx, ffmpeg, "-y", "-i", src, out)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return "", errors.Wrap(err, "ffmpeg transcode failed")
		}
		return "", errors.Wrapf(err, "ffmpeg transcode failed: %s", lastLines(msg, 3))
	}

	zlog.Debug().Str("src", src).Msg("transcoded to wav")
	return out, nil
}

// lastLines keeps the tail of the output, where ffmpeg puts the actual
// failure; everything before is version and stream chatter.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
