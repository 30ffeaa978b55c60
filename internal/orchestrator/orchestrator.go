// Package orchestrator drives one analysis job end to end: plan, extract,
// score, aggregate, persist. It owns the job lifecycle and the resume
// semantics built on the persisted artifact.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/framesift/framesift/internal/analysis"
	"github.com/framesift/framesift/internal/media"
	"github.com/framesift/framesift/internal/sampler"
	"github.com/framesift/framesift/internal/scorer"
	"github.com/framesift/framesift/internal/store"
)

// FrameClient scores one extracted frame image.
type FrameClient interface {
	Call(ctx context.Context, imagePath string) (scorer.Result, error)
}

// RecordSink receives completed frame records for secondary indexing.
// Sink failures are logged, never fatal.
type RecordSink interface {
	RecordFrame(ctx context.Context, rec analysis.FrameRecord) error
}

// Options are the per-job analysis parameters.
type Options struct {
	Interval  time.Duration
	MaxFrames int
	Threshold float64
}

// Config wires an orchestrator. Sampler, Client, and Store are required;
// the rest default sensibly.
type Config struct {
	Sampler *sampler.Sampler
	Client  FrameClient
	Store   *store.Store
	Sink    RecordSink
	Logger  *slog.Logger

	// Probe and NewID exist for tests; zero values use ffprobe and uuid.
	Probe func(ctx context.Context, path string) (media.Video, error)
	NewID func() string
}

// Orchestrator runs analysis jobs. Safe to reuse across jobs; per-job state
// lives in the artifact.
type Orchestrator struct {
	sampler *sampler.Sampler
	client  FrameClient
	store   *store.Store
	sink    RecordSink
	logger  *slog.Logger
	probe   func(ctx context.Context, path string) (media.Video, error)
	newID   func() string
}

// New constructs an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		sampler: cfg.Sampler,
		client:  cfg.Client,
		store:   cfg.Store,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		probe:   cfg.Probe,
		newID:   cfg.NewID,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.probe == nil {
		o.probe = media.Probe
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// ErrParameterMismatch is returned when a resume is attempted with
// parameters that differ from the persisted artifact's. Persisted records
// were produced under the stored plan; mixing plans would corrupt the
// timeline.
var ErrParameterMismatch = errors.New("job parameters differ from persisted artifact")

// Run executes or resumes the job for videoPath. Cancellation pauses the
// job: state is saved and the artifact returned with StatusPaused, so the
// same invocation later picks up where it stopped. Skipped frames are
// permanent and not revisited on resume. Resuming with a different
// interval, frame cap, or threshold is rejected with ErrParameterMismatch;
// delete the artifact to re-analyze under new parameters.
func (o *Orchestrator) Run(ctx context.Context, videoPath string, opts Options) (*store.Artifact, error) {
	stem := media.Stem(videoPath)
	lock, err := o.store.Acquire(stem)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	video, err := o.probe(ctx, videoPath)
	if err != nil {
		return o.fail(stem, nil, fmt.Errorf("probe video: %w", err))
	}

	plan, err := o.sampler.Plan(video, opts.Interval, opts.MaxFrames)
	if err != nil {
		return nil, err
	}

	artifact, err := o.store.Load(stem)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		artifact = store.NewArtifact(o.newID(), video.Filename,
			opts.Interval.Seconds(), len(plan.Frames), opts.Threshold)
		o.logger.Info("starting analysis job",
			"job", artifact.Job.ID, "video", video.Filename, "frames", len(plan.Frames))
	} else {
		if err := resumeMismatch(artifact, opts, len(plan.Frames)); err != nil {
			return nil, err
		}
		o.logger.Info("resuming analysis job",
			"job", artifact.Job.ID, "video", video.Filename,
			"analyzed", len(artifact.Frames), "skipped", len(artifact.Job.SkippedFrames))
	}
	artifact.Job.Status = store.StatusRunning
	artifact.Job.Error = ""

	// Replaying persisted records in index order reproduces the running
	// statistics of the interrupted run exactly.
	agg := analysis.NewAggregator()
	for _, rec := range artifact.SortedRecords() {
		agg.Add(rec)
	}

	resolved := artifact.ResolvedIndexes()
	framesDir := o.store.FramesDir(stem)

	for _, frame := range plan.Frames {
		if _, done := resolved[frame.Index]; done {
			continue
		}
		if ctx.Err() != nil {
			return o.pause(stem, artifact, agg)
		}

		path, err := o.sampler.Extract(ctx, video, frame, framesDir)
		if err != nil {
			if ctx.Err() != nil {
				return o.pause(stem, artifact, agg)
			}
			if errors.Is(err, sampler.ErrFrameUnavailable) {
				artifact.MarkSkipped(frame.Index)
				if perr := o.persist(stem, artifact, agg); perr != nil {
					return o.fail(stem, artifact, perr)
				}
				continue
			}
			return o.fail(stem, artifact, err)
		}

		result, err := o.client.Call(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return o.pause(stem, artifact, agg)
			}
			if scorer.IsExhausted(err) {
				o.logger.Warn("frame scoring exhausted retries, skipping",
					"frame", frame.Index, "error", err)
				artifact.MarkSkipped(frame.Index)
				if perr := o.persist(stem, artifact, agg); perr != nil {
					return o.fail(stem, artifact, perr)
				}
				continue
			}
			return o.fail(stem, artifact, err)
		}
		for _, warning := range result.Warnings {
			o.logger.Warn("scorer response adjusted", "frame", frame.Index, "warning", warning)
		}

		rec := analysis.NewFrameRecord(frame.Index, sampler.Timecode(frame.Timestamp),
			filepath.Base(path), result.Score, opts.Threshold, result.Tags, result.Description)
		agg.Add(rec)
		artifact.Frames[rec.Filename] = rec
		if perr := o.persist(stem, artifact, agg); perr != nil {
			return o.fail(stem, artifact, perr)
		}

		if o.sink != nil {
			if serr := o.sink.RecordFrame(ctx, rec); serr != nil {
				o.logger.Warn("secondary index write failed", "frame", frame.Index, "error", serr)
			}
		}
	}

	artifact.Job.Status = store.StatusCompleted
	summary := agg.Summary()
	artifact.Summary = summary
	artifact.VideoInfo.FramesAnalyzed = len(artifact.Frames)
	artifact.VideoInfo.AnalysisTime = summary.AnalysisTime
	if err := o.store.Save(stem, artifact); err != nil {
		return nil, err
	}
	o.logger.Info("analysis job completed",
		"job", artifact.Job.ID, "analyzed", len(artifact.Frames),
		"skipped", len(artifact.Job.SkippedFrames), "average", summary.AverageScore)
	return artifact, nil
}

// resumeMismatch compares the requested options against the parameters the
// artifact was produced under.
func resumeMismatch(artifact *store.Artifact, opts Options, framesPlanned int) error {
	if math.Abs(artifact.VideoInfo.IntervalSeconds-opts.Interval.Seconds()) > 1e-9 {
		return fmt.Errorf("%w: interval %gs, artifact has %gs",
			ErrParameterMismatch, opts.Interval.Seconds(), artifact.VideoInfo.IntervalSeconds)
	}
	if artifact.VideoInfo.FramesPlanned != framesPlanned {
		return fmt.Errorf("%w: plan has %d frames, artifact has %d",
			ErrParameterMismatch, framesPlanned, artifact.VideoInfo.FramesPlanned)
	}
	if artifact.Job.Threshold != opts.Threshold {
		return fmt.Errorf("%w: threshold %g, artifact has %g",
			ErrParameterMismatch, opts.Threshold, artifact.Job.Threshold)
	}
	return nil
}

// persist saves the in-progress artifact with refreshed derived state.
func (o *Orchestrator) persist(stem string, artifact *store.Artifact, agg *analysis.Aggregator) error {
	artifact.Summary = agg.Summary()
	artifact.VideoInfo.FramesAnalyzed = len(artifact.Frames)
	return o.store.Save(stem, artifact)
}

// pause records an orderly stop. Pausing is not an error; the caller reads
// the status from the returned artifact.
func (o *Orchestrator) pause(stem string, artifact *store.Artifact, agg *analysis.Aggregator) (*store.Artifact, error) {
	artifact.Job.Status = store.StatusPaused
	if err := o.persist(stem, artifact, agg); err != nil {
		return o.fail(stem, artifact, err)
	}
	o.logger.Info("analysis job paused",
		"job", artifact.Job.ID, "analyzed", len(artifact.Frames))
	return artifact, nil
}

// fail marks the job failed and saves best-effort.
func (o *Orchestrator) fail(stem string, artifact *store.Artifact, cause error) (*store.Artifact, error) {
	if artifact == nil {
		return nil, cause
	}
	artifact.Job.Status = store.StatusFailed
	artifact.Job.Error = cause.Error()
	if err := o.store.Save(stem, artifact); err != nil {
		o.logger.Error("could not save failed job state", "error", err)
	}
	return artifact, cause
}
