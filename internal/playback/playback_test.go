package playback

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/framesift/framesift/internal/analysis"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
		want   *ByteRange
		err    error
	}{
		{name: "no header serves full body", header: "", size: 100, want: nil},
		{name: "closed range", header: "bytes=0-49", size: 100, want: &ByteRange{0, 49}},
		{name: "open ended", header: "bytes=50-", size: 100, want: &ByteRange{50, 99}},
		{name: "suffix", header: "bytes=-10", size: 100, want: &ByteRange{90, 99}},
		{name: "suffix longer than file", header: "bytes=-500", size: 100, want: &ByteRange{0, 99}},
		{name: "end clamped to size", header: "bytes=0-9999", size: 100, want: &ByteRange{0, 99}},
		{name: "multi range uses first", header: "bytes=0-9,50-59", size: 100, want: &ByteRange{0, 9}},
		{name: "start past end of file", header: "bytes=100-", size: 100, err: ErrUnsatisfiableRange},
		{name: "inverted", header: "bytes=50-10", size: 100, err: ErrUnsatisfiableRange},
		{name: "missing unit", header: "0-49", size: 100, err: ErrMalformedRange},
		{name: "garbage", header: "bytes=abc-def", size: 100, err: ErrMalformedRange},
		{name: "empty suffix", header: "bytes=-", size: 100, err: ErrMalformedRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.header, tc.size)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRange failed: %v", err)
			}
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != *tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServeFileFullBody(t *testing.T) {
	path := writeTestFile(t, "0123456789")
	streamer := NewStreamer(quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	if err := streamer.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestServeFilePartialContent(t *testing.T) {
	path := writeTestFile(t, "0123456789")
	streamer := NewStreamer(quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "bytes=2-5")
	if err := streamer.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile failed: %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "2345" {
		t.Fatalf("body = %q, want 2345", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Fatalf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Fatalf("Content-Length = %q", got)
	}
}

func TestServeFileUnsatisfiableRange(t *testing.T) {
	path := writeTestFile(t, "0123456789")
	streamer := NewStreamer(quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "bytes=500-")
	if err := streamer.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile failed: %v", err)
	}

	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestServeFileMalformedRangeFallsBack(t *testing.T) {
	path := writeTestFile(t, "0123456789")
	streamer := NewStreamer(quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	req.Header.Set("Range", "chunks=1-2")
	if err := streamer.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile failed: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "0123456789" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestServeFileMissing(t *testing.T) {
	streamer := NewStreamer(quietLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/video", nil)
	if err := streamer.ServeFile(rec, req, filepath.Join(t.TempDir(), "gone.mp4")); err != nil {
		t.Fatalf("ServeFile failed: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func timelineRecords() []analysis.FrameRecord {
	return []analysis.FrameRecord{
		{FrameIndex: 0, Timestamp: "00:00:00.000", Filename: "clip_00_00_00_000.jpg"},
		{FrameIndex: 1, Timestamp: "00:00:05.000", Filename: "clip_00_00_05_000.jpg"},
		{FrameIndex: 2, Timestamp: "00:00:10.000", Filename: "clip_00_00_10_000.jpg"},
	}
}

func TestFrameAt(t *testing.T) {
	records := timelineRecords()

	tests := []struct {
		position time.Duration
		want     int
	}{
		{0, 0},
		{3 * time.Second, 0},
		{5 * time.Second, 1},
		{7500 * time.Millisecond, 1},
		{time.Minute, 2},
	}
	for _, tc := range tests {
		rec, ok := FrameAt(records, tc.position)
		if !ok {
			t.Fatalf("FrameAt(%v) found nothing", tc.position)
		}
		if rec.FrameIndex != tc.want {
			t.Fatalf("FrameAt(%v) = frame %d, want %d", tc.position, rec.FrameIndex, tc.want)
		}
	}
}

func TestFrameAtOutOfBounds(t *testing.T) {
	if _, ok := FrameAt(nil, time.Second); ok {
		t.Fatal("empty record set should find nothing")
	}
	records := []analysis.FrameRecord{
		{FrameIndex: 1, Timestamp: "00:00:05.000"},
	}
	if _, ok := FrameAt(records, time.Second); ok {
		t.Fatal("position before first frame should find nothing")
	}
}
