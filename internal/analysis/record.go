package analysis

import "strings"

// FrameRecord is the immutable result of scoring one extracted frame.
// Records are created once per frame index and never mutated; re-scoring a
// frame is a new job, not an in-place edit.
type FrameRecord struct {
	FrameIndex  int      `json:"frame_index"`
	Timestamp   string   `json:"timestamp"` // HH:MM:SS.mmm, derived from the planned timestamp
	Filename    string   `json:"filename"`
	Score       float64  `json:"score"`
	IsFlagged   bool     `json:"is_flagged"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// NewFrameRecord builds a record from a validated score result. The flagged
// bit is fixed at creation time from the job's configured threshold.
func NewFrameRecord(index int, timestamp, filename string, score, threshold float64, tags []string, description string) FrameRecord {
	return FrameRecord{
		FrameIndex:  index,
		Timestamp:   timestamp,
		Filename:    filename,
		Score:       score,
		IsFlagged:   score >= threshold,
		Tags:        NormalizeTags(tags),
		Description: strings.TrimSpace(description),
	}
}

// NormalizeTags trims whitespace, drops empty entries, and removes
// duplicates while preserving first-seen order.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return normalized
}
