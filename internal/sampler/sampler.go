package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/framesift/framesift/internal/media"
)

// Sampler turns planned frames into numbered, timestamp-named image
// artifacts by delegating decode/seek to a FrameSource.
type Sampler struct {
	source FrameSource
	prefix string
	logger *slog.Logger
}

// New constructs a sampler. An empty prefix defaults each extraction to the
// video's filename stem.
func New(source FrameSource, prefix string, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{source: source, prefix: prefix, logger: logger}
}

// Plan computes the extraction plan for the video.
func (s *Sampler) Plan(video media.Video, interval time.Duration, maxFrames int) (Plan, error) {
	return NewPlan(video.Duration, interval, maxFrames)
}

// Filename reports the artifact name for a planned frame of the video.
func (s *Sampler) Filename(video media.Video, frame Frame) string {
	prefix := s.prefix
	if prefix == "" {
		prefix = video.Stem
	}
	return Filename(prefix, frame.Timestamp)
}

// Extract materializes one planned frame into destDir and returns the
// artifact path. An artifact already present from an interrupted run is
// reused rather than re-decoded. A source miss surfaces as
// ErrFrameUnavailable for the caller to record as a skip.
func (s *Sampler) Extract(ctx context.Context, video media.Video, frame Frame, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create frames dir %s: %w", destDir, err)
	}

	path := filepath.Join(destDir, s.Filename(video, frame))
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		s.logger.Debug("frame artifact exists, skipping extraction",
			"frame", frame.Index, "path", path)
		return path, nil
	}

	err := s.source.FrameAt(ctx, video.Path, frame.Timestamp.Seconds(), path)
	if err != nil {
		if errors.Is(err, ErrFrameUnavailable) {
			s.logger.Warn("frame unavailable",
				"frame", frame.Index, "timestamp", Timecode(frame.Timestamp))
		}
		return "", err
	}
	return path, nil
}
