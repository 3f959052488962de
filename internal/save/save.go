// Package save exports cached artifacts to the music library.
package save

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/seb-lau/tubeamp/internal/track"
)

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeFilename strips characters invalid in filenames and trims
// whitespace. Falls back to "track" if the result is empty.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" {
		return "track"
	}
	return name
}

// Export converts the artifact to MP3 via ffmpeg, writes it into dir named
// after the track title, and tags it. Returns the destination path.
func Export(artifactPath string, t track.Track, dir string) (string, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.New("ffmpeg not found (required for saving)")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating save dir")
	}
	dest := filepath.Join(dir, SanitizeFilename(t.Title)+".mp3")
	if _, err := os.Stat(dest); err == nil {
		return "", errors.Newf("file %q already exists", dest)
	}

	cmd := exec.Command(ffmpeg,
		"-i", artifactPath,
		"-q:a", "2",
		dest,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", errors.Wrapf(err, "ffmpeg failed: %s", output)
	}

	if err := writeTags(dest, t); err != nil {
		// The audio is intact; a tagging failure is not fatal.
		zlog.Warn().Err(err).Str("path", dest).Msg("tagging failed")
	}
	return dest, nil
}

func writeTags(path string, t track.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return errors.Wrap(err, "opening tags")
	}
	defer tag.Close()

	tag.SetTitle(t.Title)
	if t.Uploader != "" {
		tag.SetArtist(t.Uploader)
	}
	return tag.Save()
}
