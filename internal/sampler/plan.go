// Package sampler computes which frames to extract from a video and turns
// each planned frame into a timestamp-named image artifact.
package sampler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidParameter is returned for a non-positive interval or a negative
// frame cap, before any work starts.
var ErrInvalidParameter = errors.New("invalid extraction parameter")

// Frame is one planned extraction. Index is 0-based; insertion order is
// chronological order.
type Frame struct {
	Index     int
	Timestamp time.Duration
}

// Plan is the ordered sequence of frames to extract.
type Plan struct {
	Interval time.Duration
	Frames   []Frame
}

// NewPlan derives the extraction plan from the video duration. Timestamps
// are strictly increasing multiples of the interval starting at 0 and
// truncated to the duration; the final frame is included even when it lands
// exactly on the end boundary. A cap > 0 truncates the tail of the plan.
func NewPlan(duration, interval time.Duration, maxFrames int) (Plan, error) {
	if interval <= 0 {
		return Plan{}, fmt.Errorf("%w: interval must be > 0, got %v", ErrInvalidParameter, interval)
	}
	if duration < 0 {
		return Plan{}, fmt.Errorf("%w: duration must be >= 0, got %v", ErrInvalidParameter, duration)
	}
	if maxFrames < 0 {
		return Plan{}, fmt.Errorf("%w: frame cap must be >= 0, got %d", ErrInvalidParameter, maxFrames)
	}

	count := int(duration/interval) + 1
	if maxFrames > 0 && count > maxFrames {
		count = maxFrames
	}

	plan := Plan{Interval: interval, Frames: make([]Frame, count)}
	for i := 0; i < count; i++ {
		plan.Frames[i] = Frame{Index: i, Timestamp: time.Duration(i) * interval}
	}
	return plan, nil
}

// Timecode renders a duration as HH:MM:SS.mmm.
func Timecode(ts time.Duration) string {
	h, m, s, ms := splitTimestamp(ts)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ParseTimecode parses the HH:MM:SS.mmm form produced by Timecode.
func ParseTimecode(tc string) (time.Duration, error) {
	var h, m, s, ms int
	if _, err := fmt.Sscanf(strings.TrimSpace(tc), "%d:%d:%d.%d", &h, &m, &s, &ms); err != nil {
		return 0, fmt.Errorf("parse timecode %q: %w", tc, err)
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// Filename builds the frame artifact name {prefix}_{HH}_{MM}_{SS}_{mmm}.jpg
// from the planned timestamp, so names are a pure function of frame index
// and interval rather than of a decoder-adjusted time.
func Filename(prefix string, ts time.Duration) string {
	h, m, s, ms := splitTimestamp(ts)
	return fmt.Sprintf("%s_%02d_%02d_%02d_%03d.jpg", prefix, h, m, s, ms)
}

func splitTimestamp(ts time.Duration) (h, m, s, ms int) {
	total := int(ts / time.Millisecond)
	ms = total % 1000
	seconds := total / 1000
	return seconds / 3600, (seconds % 3600) / 60, seconds % 60, ms
}
