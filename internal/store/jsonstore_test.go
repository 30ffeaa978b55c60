package store

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/framesift/framesift/internal/analysis"
)

func sampleArtifact() *Artifact {
	artifact := NewArtifact("job-1", "clip.mp4", 5, 3, 41)
	artifact.Job.Status = StatusRunning
	artifact.Frames["clip_00_00_00_000.jpg"] = analysis.NewFrameRecord(
		0, "00:00:00.000", "clip_00_00_00_000.jpg", 10, 41, []string{"person"}, "a person")
	artifact.Frames["clip_00_00_05_000.jpg"] = analysis.NewFrameRecord(
		1, "00:00:05.000", "clip_00_00_05_000.jpg", 55, 41, []string{"explicit"}, "more")
	return artifact
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	artifact := sampleArtifact()

	if err := s.Save("clip", artifact); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := s.Load("clip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, artifact) {
		t.Fatalf("round trip diverged:\n got %+v\nwant %+v", loaded, artifact)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	s := New(t.TempDir())
	artifact, err := s.Load("never-ran")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if artifact != nil {
		t.Fatalf("expected nil artifact, got %+v", artifact)
	}
}

func TestSaveIsByteStableForSameContent(t *testing.T) {
	s := New(t.TempDir())
	artifact := sampleArtifact()

	if err := s.Save("clip", artifact); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, err := os.ReadFile(s.ArtifactPath("clip"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	// Simulate resume: load, save again without changes.
	loaded, err := s.Load("clip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.Save("clip", loaded); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	second, err := os.ReadFile(s.ArtifactPath("clip"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("artifact bytes changed across load/save cycle")
	}
}

func TestAcquireRejectsConcurrentWriter(t *testing.T) {
	s := New(t.TempDir())

	lock, err := s.Acquire("clip")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := s.Acquire("clip"); !errors.Is(err, ErrJobLocked) {
		t.Fatalf("second Acquire: got %v, want ErrJobLocked", err)
	}

	// A different job is independent.
	other, err := s.Acquire("other")
	if err != nil {
		t.Fatalf("Acquire other job failed: %v", err)
	}
	other.Release()
}

func TestListReportsArtifacts(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Save("beta", sampleArtifact()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save("alpha", sampleArtifact()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stems, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(stems, []string{"alpha", "beta"}) {
		t.Fatalf("List = %v", stems)
	}
}

func TestSortedRecordsAscendingIndex(t *testing.T) {
	artifact := sampleArtifact()
	records := artifact.SortedRecords()
	if len(records) != 2 || records[0].FrameIndex != 0 || records[1].FrameIndex != 1 {
		t.Fatalf("SortedRecords = %+v", records)
	}
}

func TestMarkSkippedDedupAndSort(t *testing.T) {
	artifact := NewArtifact("job-1", "clip.mp4", 5, 5, 41)
	artifact.MarkSkipped(3)
	artifact.MarkSkipped(1)
	artifact.MarkSkipped(3)
	if !reflect.DeepEqual(artifact.Job.SkippedFrames, []int{1, 3}) {
		t.Fatalf("SkippedFrames = %v", artifact.Job.SkippedFrames)
	}
	resolved := artifact.ResolvedIndexes()
	if _, ok := resolved[1]; !ok {
		t.Fatal("skip marker missing from resolved set")
	}
}
