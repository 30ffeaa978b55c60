package api

import (
	"sort"

	"github.com/framesift/framesift/internal/media"
	"github.com/framesift/framesift/internal/store"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// VideoResponse is one inventory row: the source file joined with its
// analysis summary when an artifact exists.
type VideoResponse struct {
	Filename      string   `json:"filename"`
	SizeBytes     int64    `json:"size_bytes"`
	Analyzed      bool     `json:"analyzed"`
	Status        string   `json:"status,omitempty"`
	TotalFrames   int      `json:"total_frames,omitempty"`
	FlaggedFrames int      `json:"flagged_frames,omitempty"`
	AverageScore  float64  `json:"average_score,omitempty"`
	TopTags       []string `json:"top_tags,omitempty"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

// ChartPoint is one frame on the score timeline, ordered by frame index.
type ChartPoint struct {
	FrameIndex int     `json:"frame_index"`
	Timestamp  string  `json:"timestamp"`
	Score      float64 `json:"score"`
	IsFlagged  bool    `json:"is_flagged"`
	Filename   string  `json:"filename"`
}

// AnalysisResponse is the persisted artifact plus the chart series derived
// from it.
type AnalysisResponse struct {
	*store.Artifact
	ChartData []ChartPoint `json:"chart_data"`
}

type FrameAtResponse struct {
	FrameIndex int     `json:"frame_index"`
	Timestamp  string  `json:"timestamp"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
	IsFlagged  bool    `json:"is_flagged"`
}

// SimilarResponse lists frame filenames nearest to a free-text query,
// best match first.
type SimilarResponse struct {
	Query  string   `json:"query"`
	Frames []string `json:"frames"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// VideoToResponse joins a discovered video with its artifact, which may be
// nil for unanalyzed files.
func VideoToResponse(v media.Video, artifact *store.Artifact) VideoResponse {
	resp := VideoResponse{
		Filename:  v.Filename,
		SizeBytes: v.SizeBytes,
	}
	if artifact == nil {
		return resp
	}
	resp.Analyzed = true
	resp.Status = string(artifact.Job.Status)
	resp.TotalFrames = artifact.Summary.TotalFrames
	resp.FlaggedFrames = artifact.Summary.FlaggedFrames
	resp.AverageScore = artifact.Summary.AverageScore
	resp.TopTags = topTags(artifact.Summary.TagDistribution, 3)
	return resp
}

// topTags picks the n most frequent tags, breaking count ties by name so
// the result is stable.
func topTags(distribution map[string]int, n int) []string {
	tags := make([]string, 0, len(distribution))
	for tag := range distribution {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if distribution[tags[i]] != distribution[tags[j]] {
			return distribution[tags[i]] > distribution[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}

// ChartDataFor derives the score timeline from the artifact's records.
func ChartDataFor(artifact *store.Artifact) []ChartPoint {
	records := artifact.SortedRecords()
	points := make([]ChartPoint, len(records))
	for i, rec := range records {
		points[i] = ChartPoint{
			FrameIndex: rec.FrameIndex,
			Timestamp:  rec.Timestamp,
			Score:      rec.Score,
			IsFlagged:  rec.IsFlagged,
			Filename:   rec.Filename,
		}
	}
	return points
}
