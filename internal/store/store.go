// Package store persists the analysis artifact: the document consumed by
// the dashboard and used as the sole source of truth for resume.
package store

import (
	"sort"

	"github.com/framesift/framesift/internal/analysis"
)

// Status is the lifecycle state of an analysis job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// VideoInfo captures source metadata and extraction parameters.
type VideoInfo struct {
	Filename        string  `json:"filename"`
	IntervalSeconds float64 `json:"interval_seconds"`
	FramesPlanned   int     `json:"frames_planned"`
	FramesAnalyzed  int     `json:"frames_analyzed"`
	AnalysisTime    string  `json:"analysis_time"`
}

// JobInfo carries job identity and the permanent skip markers, so consumers
// know when an analysis is partial rather than silently under-counted.
type JobInfo struct {
	ID            string  `json:"id"`
	Status        Status  `json:"status"`
	Threshold     float64 `json:"threshold"`
	SkippedFrames []int   `json:"skipped_frames"`
	Error         string  `json:"error,omitempty"`
}

// Artifact is the persisted analysis document, keyed by video identity.
// Frames map artifact filename to FrameRecord, mirroring the on-disk frame
// images.
type Artifact struct {
	VideoInfo VideoInfo                       `json:"video_info"`
	Job       JobInfo                         `json:"job"`
	Summary   analysis.Summary                `json:"analysis_summary"`
	Frames    map[string]analysis.FrameRecord `json:"frames"`
}

// NewArtifact returns an empty document for a fresh job.
func NewArtifact(jobID, filename string, intervalSeconds float64, framesPlanned int, threshold float64) *Artifact {
	return &Artifact{
		VideoInfo: VideoInfo{
			Filename:        filename,
			IntervalSeconds: intervalSeconds,
			FramesPlanned:   framesPlanned,
		},
		Job: JobInfo{
			ID:        jobID,
			Status:    StatusPending,
			Threshold: threshold,
		},
		Frames: make(map[string]analysis.FrameRecord),
	}
}

// SortedRecords returns the frame records in ascending frame index order,
// the order in which they were produced.
func (a *Artifact) SortedRecords() []analysis.FrameRecord {
	records := make([]analysis.FrameRecord, 0, len(a.Frames))
	for _, rec := range a.Frames {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].FrameIndex < records[j].FrameIndex })
	return records
}

// ResolvedIndexes reports the frame indexes that need no further work:
// scored frames and permanently skipped ones.
func (a *Artifact) ResolvedIndexes() map[int]struct{} {
	resolved := make(map[int]struct{}, len(a.Frames)+len(a.Job.SkippedFrames))
	for _, rec := range a.Frames {
		resolved[rec.FrameIndex] = struct{}{}
	}
	for _, idx := range a.Job.SkippedFrames {
		resolved[idx] = struct{}{}
	}
	return resolved
}

// MarkSkipped appends a permanent skip marker, keeping the list sorted and
// free of duplicates.
func (a *Artifact) MarkSkipped(index int) {
	for _, existing := range a.Job.SkippedFrames {
		if existing == index {
			return
		}
	}
	a.Job.SkippedFrames = append(a.Job.SkippedFrames, index)
	sort.Ints(a.Job.SkippedFrames)
}
