package analysis

import (
	"math"
	"time"
)

// HighestScoreFrame references the best-scoring frame seen so far. On exact
// score ties the earliest frame index wins.
type HighestScoreFrame struct {
	FrameIndex  int      `json:"frame_index"`
	Filename    string   `json:"filename"`
	Score       float64  `json:"score"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// Summary is derived state: a pure function of the FrameRecord set,
// recomputable at any time and never independently mutated.
type Summary struct {
	TotalFrames       int               `json:"total_frames"`
	FlaggedFrames     int               `json:"flagged_frames"`
	FlaggedPercentage float64           `json:"flagged_percentage"`
	AverageScore      float64           `json:"average_score"`
	HighestScoreFrame HighestScoreFrame `json:"highest_score_frame"`
	TagDistribution   map[string]int    `json:"tag_distribution"`
	AnalysisTime      string            `json:"analysis_time"`
}

// Aggregator consumes a stream of FrameRecords and maintains running
// statistics so Summary is O(1) rather than a rescan. Feeding it a freshly
// loaded record set in ascending index order reproduces the exact running
// state of the interrupted run.
type Aggregator struct {
	total    int
	flagged  int
	scoreSum float64
	tags     map[string]int
	highest  *FrameRecord
	now      func() time.Time
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		tags: make(map[string]int),
		now:  time.Now,
	}
}

// SetClock overrides the completion-timestamp clock. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// Add folds one record into the running statistics. Each distinct tag counts
// once per frame regardless of repetition within the record's tag list.
func (a *Aggregator) Add(rec FrameRecord) {
	a.total++
	a.scoreSum += rec.Score
	if rec.IsFlagged {
		a.flagged++
	}
	for _, tag := range NormalizeTags(rec.Tags) {
		a.tags[tag]++
	}
	if a.highest == nil || rec.Score > a.highest.Score {
		copied := rec
		a.highest = &copied
	}
}

// Summary materializes the current statistics.
func (a *Aggregator) Summary() Summary {
	s := Summary{
		TotalFrames:     a.total,
		FlaggedFrames:   a.flagged,
		TagDistribution: make(map[string]int, len(a.tags)),
		AnalysisTime:    a.now().UTC().Format(time.RFC3339),
		HighestScoreFrame: HighestScoreFrame{
			Description: "No frames analyzed",
		},
	}
	for tag, count := range a.tags {
		s.TagDistribution[tag] = count
	}
	if a.total > 0 {
		s.FlaggedPercentage = round2(float64(a.flagged) / float64(a.total) * 100)
		s.AverageScore = round2(a.scoreSum / float64(a.total))
	}
	if a.highest != nil {
		s.HighestScoreFrame = HighestScoreFrame{
			FrameIndex:  a.highest.FrameIndex,
			Filename:    a.highest.Filename,
			Score:       a.highest.Score,
			Tags:        append([]string(nil), a.highest.Tags...),
			Description: a.highest.Description,
		}
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
