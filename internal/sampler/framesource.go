package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFrameUnavailable signals that the source has no decodable frame at the
// requested timestamp (e.g. a truncated file). It marks a single-frame skip,
// never a job failure.
var ErrFrameUnavailable = errors.New("no frame available at timestamp")

// FrameSource decodes the frame at or after a timestamp into an image file.
type FrameSource interface {
	FrameAt(ctx context.Context, videoPath string, seconds float64, outputPath string) error
}

// FFmpegSource extracts frames by seeking with the ffmpeg binary.
type FFmpegSource struct {
	Binary string
}

// NewFFmpegSource returns a source using the ffmpeg binary on PATH.
func NewFFmpegSource() *FFmpegSource {
	return &FFmpegSource{Binary: "ffmpeg"}
}

// FrameAt seeks to the timestamp and writes a single JPEG frame. ffmpeg
// exits successfully with no output when the seek lands past the end of the
// stream, so an absent or empty file maps to ErrFrameUnavailable.
func (f *FFmpegSource) FrameAt(ctx context.Context, videoPath string, seconds float64, outputPath string) error {
	binary := f.Binary
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg extract at %.3fs: %w: %s", seconds, err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %.3fs", ErrFrameUnavailable, seconds)
	}
	return nil
}
