// Package playback streams source videos to the dashboard with HTTP byte
// range support, and maps playhead positions back to analyzed frames.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRange means the Range header could not be parsed; the
	// response falls back to the full body.
	ErrMalformedRange = errors.New("malformed range header")
	// ErrUnsatisfiableRange means the requested range lies outside the file.
	ErrUnsatisfiableRange = errors.New("range not satisfiable")
)

// ByteRange is a single resolved byte span within a file of known size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length reports the span size in bytes.
func (br ByteRange) Length() int64 {
	return br.End - br.Start + 1
}

// ContentRange formats the Content-Range header value.
func (br ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size)
}

// ParseRange resolves a Range header against a file size. An empty header
// returns (nil, nil): the caller serves the whole file. Multi-range requests
// are answered with the first range only.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrMalformedRange
	}
	if idx := strings.IndexByte(spec, ','); idx >= 0 {
		spec = spec[:idx]
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, ErrMalformedRange
	}

	if startStr == "" {
		// Suffix form: last N bytes.
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return nil, ErrMalformedRange
		}
		start := size - suffix
		if start < 0 {
			start = 0
		}
		return &ByteRange{Start: start, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrMalformedRange
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, ErrMalformedRange
		}
	}
	if end >= size {
		end = size - 1
	}
	if start > end || start >= size {
		return nil, ErrUnsatisfiableRange
	}
	return &ByteRange{Start: start, End: end}, nil
}

// Streamer serves local media files over HTTP with range support so browser
// video elements can seek.
type Streamer struct {
	logger *slog.Logger
}

// NewStreamer returns a streamer logging through logger.
func NewStreamer(logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{logger: logger}
}

// ServeFile writes the file at path to the response, honoring a single
// Range header with a 206. A malformed Range header degrades to the full
// body rather than an error.
func (s *Streamer) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := stat.Size()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	br, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiableRange):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrMalformedRange):
		s.logger.Debug("ignoring malformed range header", "range", r.Header.Get("Range"))
		br = nil
	case err != nil:
		return err
	}

	if br == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, file)
		return err
	}

	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", path, err)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	w.Header().Set("Content-Range", br.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, file, br.Length())
	return err
}
