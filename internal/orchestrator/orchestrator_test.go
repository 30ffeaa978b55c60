package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/framesift/framesift/internal/analysis"
	"github.com/framesift/framesift/internal/media"
	"github.com/framesift/framesift/internal/sampler"
	"github.com/framesift/framesift/internal/scorer"
	"github.com/framesift/framesift/internal/store"
)

type fakeSource struct {
	calls int
	fail  map[float64]bool
}

func (f *fakeSource) FrameAt(ctx context.Context, videoPath string, seconds float64, outputPath string) error {
	f.calls++
	if f.fail[seconds] {
		return sampler.ErrFrameUnavailable
	}
	return os.WriteFile(outputPath, []byte("jpeg-bytes"), 0o644)
}

type stubClient struct {
	calls int
	fn    func(imagePath string) (scorer.Result, error)
}

func (c *stubClient) Call(ctx context.Context, imagePath string) (scorer.Result, error) {
	c.calls++
	return c.fn(imagePath)
}

func fixedProbe(ctx context.Context, path string) (media.Video, error) {
	return media.Video{
		Path:     path,
		Filename: "clip.mp4",
		Stem:     "clip",
		Duration: 12 * time.Second,
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scoreByOrder returns 10, 55, 90 for successive calls.
func scoreByOrder() func(string) (scorer.Result, error) {
	scores := []float64{10, 55, 90}
	n := 0
	return func(string) (scorer.Result, error) {
		s := scores[n%len(scores)]
		n++
		return scorer.Result{Score: s, Tags: []string{"person"}, Description: "scene"}, nil
	}
}

func newTestOrchestrator(t *testing.T, client FrameClient, source sampler.FrameSource) (*Orchestrator, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	o := New(Config{
		Sampler: sampler.New(source, "", testLogger()),
		Client:  client,
		Store:   st,
		Logger:  testLogger(),
		Probe:   fixedProbe,
		NewID:   func() string { return "job-test" },
	})
	return o, st
}

func defaultOptions() Options {
	return Options{Interval: 5 * time.Second, MaxFrames: 100, Threshold: 41}
}

func TestRunCompletesJob(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if client.calls != 3 {
		t.Fatalf("client called %d times, want 3", client.calls)
	}
	if artifact.Summary.TotalFrames != 3 || artifact.Summary.FlaggedFrames != 2 {
		t.Fatalf("summary = %+v", artifact.Summary)
	}
	if artifact.Summary.AverageScore != 51.67 {
		t.Fatalf("average = %v, want 51.67", artifact.Summary.AverageScore)
	}
	if artifact.Summary.HighestScoreFrame.FrameIndex != 2 {
		t.Fatalf("highest frame = %d, want 2", artifact.Summary.HighestScoreFrame.FrameIndex)
	}

	// Frame images and the artifact both land on disk.
	if _, err := os.Stat(st.ArtifactPath("clip")); err != nil {
		t.Fatalf("artifact not persisted: %v", err)
	}
	for _, name := range []string{"clip_00_00_00_000.jpg", "clip_00_00_05_000.jpg", "clip_00_00_10_000.jpg"} {
		if _, ok := artifact.Frames[name]; !ok {
			t.Fatalf("missing record for %s", name)
		}
	}
}

func TestResumeScoresOnlyMissingFrames(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	source := &fakeSource{}
	o, st := newTestOrchestrator(t, client, source)

	seeded := store.NewArtifact("job-test", "clip.mp4", 5, 3, 41)
	seeded.Job.Status = store.StatusPaused
	seeded.Frames["clip_00_00_00_000.jpg"] = analysis.NewFrameRecord(
		0, "00:00:00.000", "clip_00_00_00_000.jpg", 10, 41, []string{"person"}, "scene")
	seeded.Frames["clip_00_00_05_000.jpg"] = analysis.NewFrameRecord(
		1, "00:00:05.000", "clip_00_00_05_000.jpg", 55, 41, []string{"person"}, "scene")
	if err := st.Save("clip", seeded); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("client called %d times, want 1 (only the unresolved frame)", client.calls)
	}
	if source.calls != 1 {
		t.Fatalf("source called %d times, want 1", source.calls)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if artifact.Summary.TotalFrames != 3 {
		t.Fatalf("total frames = %d, want 3", artifact.Summary.TotalFrames)
	}
	if artifact.Job.ID != "job-test" {
		t.Fatalf("job ID changed on resume: %s", artifact.Job.ID)
	}
}

func TestSkipMarkersAreNotRetried(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	seeded := store.NewArtifact("job-test", "clip.mp4", 5, 3, 41)
	seeded.Job.Status = store.StatusPaused
	seeded.Frames["clip_00_00_00_000.jpg"] = analysis.NewFrameRecord(
		0, "00:00:00.000", "clip_00_00_00_000.jpg", 10, 41, nil, "scene")
	seeded.Frames["clip_00_00_10_000.jpg"] = analysis.NewFrameRecord(
		2, "00:00:10.000", "clip_00_00_10_000.jpg", 90, 41, nil, "scene")
	seeded.MarkSkipped(1)
	if err := st.Save("clip", seeded); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("client called %d times, want 0", client.calls)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if len(artifact.Job.SkippedFrames) != 1 || artifact.Job.SkippedFrames[0] != 1 {
		t.Fatalf("skipped = %v, want [1]", artifact.Job.SkippedFrames)
	}
}

func TestResumeRejectsChangedParameters(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	if _, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	before, err := os.ReadFile(st.ArtifactPath("clip"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	// A 12s video at 3s yields a 5-frame plan whose timestamps conflict
	// with the persisted 5s records.
	changed := defaultOptions()
	changed.Interval = 3 * time.Second
	if _, err := o.Run(context.Background(), "/videos/clip.mp4", changed); !errors.Is(err, ErrParameterMismatch) {
		t.Fatalf("changed interval: got %v, want ErrParameterMismatch", err)
	}

	changed = defaultOptions()
	changed.Threshold = 70
	if _, err := o.Run(context.Background(), "/videos/clip.mp4", changed); !errors.Is(err, ErrParameterMismatch) {
		t.Fatalf("changed threshold: got %v, want ErrParameterMismatch", err)
	}

	changed = defaultOptions()
	changed.MaxFrames = 2
	if _, err := o.Run(context.Background(), "/videos/clip.mp4", changed); !errors.Is(err, ErrParameterMismatch) {
		t.Fatalf("changed frame cap: got %v, want ErrParameterMismatch", err)
	}

	// The rejected runs must not have touched the artifact.
	after, err := os.ReadFile(st.ArtifactPath("clip"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("artifact changed by rejected resume")
	}
	if client.calls != 3 {
		t.Fatalf("client called %d times, want 3 (first run only)", client.calls)
	}
}

func TestExhaustedRetriesSkipFrame(t *testing.T) {
	inner := scoreByOrder()
	client := &stubClient{fn: func(path string) (scorer.Result, error) {
		if strings.Contains(path, "_00_00_05_") {
			return scorer.Result{}, &scorer.Error{Kind: scorer.KindExhausted, Err: errors.New("backend down")}
		}
		return inner(path)
	}}
	o, _ := newTestOrchestrator(t, client, &fakeSource{})

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if len(artifact.Job.SkippedFrames) != 1 || artifact.Job.SkippedFrames[0] != 1 {
		t.Fatalf("skipped = %v, want [1]", artifact.Job.SkippedFrames)
	}
	if artifact.Summary.TotalFrames != 2 {
		t.Fatalf("total frames = %d, want 2", artifact.Summary.TotalFrames)
	}
}

func TestAllFramesExhaustedStillCompletes(t *testing.T) {
	client := &stubClient{fn: func(string) (scorer.Result, error) {
		return scorer.Result{}, &scorer.Error{Kind: scorer.KindExhausted, Err: errors.New("backend down")}
	}}
	o, _ := newTestOrchestrator(t, client, &fakeSource{})

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if len(artifact.Job.SkippedFrames) != 3 {
		t.Fatalf("skipped = %v, want all 3", artifact.Job.SkippedFrames)
	}
	if artifact.Summary.TotalFrames != 0 {
		t.Fatalf("total frames = %d, want 0", artifact.Summary.TotalFrames)
	}
}

func TestFrameUnavailableSkips(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	source := &fakeSource{fail: map[float64]bool{5: true}}
	o, _ := newTestOrchestrator(t, client, source)

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("client called %d times, want 2", client.calls)
	}
	if len(artifact.Job.SkippedFrames) != 1 || artifact.Job.SkippedFrames[0] != 1 {
		t.Fatalf("skipped = %v, want [1]", artifact.Job.SkippedFrames)
	}
}

func TestCancelledContextPausesDurably(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	artifact, err := o.Run(ctx, "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if artifact.Job.Status != store.StatusPaused {
		t.Fatalf("status = %s, want paused", artifact.Job.Status)
	}
	if client.calls != 0 {
		t.Fatalf("client called %d times, want 0", client.calls)
	}

	persisted, err := st.Load("clip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.Job.Status != store.StatusPaused {
		t.Fatalf("persisted status = %s, want paused", persisted.Job.Status)
	}

	// Same invocation with a live context finishes the job.
	resumed, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("resume Run failed: %v", err)
	}
	if resumed.Job.Status != store.StatusCompleted {
		t.Fatalf("resumed status = %s, want completed", resumed.Job.Status)
	}
	if client.calls != 3 {
		t.Fatalf("client called %d times across runs, want 3", client.calls)
	}
}

func TestProbeFailureReturnsError(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	st := store.New(t.TempDir())
	o := New(Config{
		Sampler: sampler.New(&fakeSource{}, "", testLogger()),
		Client:  client,
		Store:   st,
		Logger:  testLogger(),
		Probe: func(ctx context.Context, path string) (media.Video, error) {
			return media.Video{}, errors.New("moov atom not found")
		},
	})

	if _, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions()); err == nil {
		t.Fatal("expected error from unreadable video")
	}
}

func TestUnclassifiedErrorFailsJob(t *testing.T) {
	client := &stubClient{fn: func(string) (scorer.Result, error) {
		return scorer.Result{}, errors.New("frame file vanished")
	}}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err == nil {
		t.Fatal("expected error")
	}
	if artifact.Job.Status != store.StatusFailed {
		t.Fatalf("status = %s, want failed", artifact.Job.Status)
	}
	persisted, err := st.Load("clip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.Job.Status != store.StatusFailed || persisted.Job.Error == "" {
		t.Fatalf("persisted job = %+v", persisted.Job)
	}
}

func TestRunRejectsConcurrentJob(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	o, st := newTestOrchestrator(t, client, &fakeSource{})

	lock, err := st.Acquire("clip")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions()); !errors.Is(err, store.ErrJobLocked) {
		t.Fatalf("got %v, want ErrJobLocked", err)
	}
}

type recordingSink struct {
	records []analysis.FrameRecord
	err     error
}

func (s *recordingSink) RecordFrame(ctx context.Context, rec analysis.FrameRecord) error {
	s.records = append(s.records, rec)
	return s.err
}

func TestSinkReceivesRecordsAndFailuresAreNonFatal(t *testing.T) {
	client := &stubClient{fn: scoreByOrder()}
	sink := &recordingSink{err: errors.New("database unreachable")}
	st := store.New(t.TempDir())
	o := New(Config{
		Sampler: sampler.New(&fakeSource{}, "", testLogger()),
		Client:  client,
		Store:   st,
		Sink:    sink,
		Logger:  testLogger(),
		Probe:   fixedProbe,
	})

	artifact, err := o.Run(context.Background(), "/videos/clip.mp4", defaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if artifact.Job.Status != store.StatusCompleted {
		t.Fatalf("status = %s, want completed", artifact.Job.Status)
	}
	if len(sink.records) != 3 {
		t.Fatalf("sink received %d records, want 3", len(sink.records))
	}
}
