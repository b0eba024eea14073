package export

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ZacxDev/video-compositor/internal/ffmpeg"
	"github.com/pkg/errors"
)

// TimestampLayout stamps export file names.
const TimestampLayout = "20060102-150405"

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_.]`)
	underscores = regexp.MustCompile(`_+`)
)

func sanitizeFilename(filename string) string {
	sanitized := unsafeChars.ReplaceAllString(filename, "_")
	sanitized = underscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_.")

	if sanitized == "" {
		return "export"
	}
	return sanitized
}

// FileName returns "<key>-<timestamp><ext>" for an export of the recording key finished at t.
func FileName(key string, t time.Time, ext string) string {
	base := sanitizeFilename(ffmpeg.EnsureExtension(key, ""))
	return ffmpeg.EnsureExtension(base+"-"+t.UTC().Format(TimestampLayout), ext)
}

func ensureOutputDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}

// writeChunks concatenates chunks into dir/name via a temp file renamed into place.
func writeChunks(dir, name string, chunks [][]byte) (string, int64, error) {
	if err := ensureOutputDir(dir); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create export file")
	}
	defer os.Remove(tmp.Name())

	var n int64
	for _, c := range chunks {
		w, err := tmp.Write(c)
		n += int64(w)
		if err != nil {
			_ = tmp.Close()
			return "", n, errors.Wrap(err, "failed to write export file")
		}
	}
	if err := tmp.Close(); err != nil {
		return "", n, errors.Wrap(err, "failed to write export file")
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", n, errors.Wrap(err, "failed to finalize export file")
	}
	return path, n, nil
}
