package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/framesift/framesift/internal/analysis"
)

// ErrJobLocked is returned when another orchestrator already owns the job's
// artifact.
var ErrJobLocked = errors.New("job artifact locked by another process")

// Store reads and writes analysis artifacts under a single output
// directory: {stem}_analysis.json next to a {stem}_frames/ image directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir reports the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactPath reports the document location for a video stem.
func (s *Store) ArtifactPath(stem string) string {
	return filepath.Join(s.dir, stem+"_analysis.json")
}

// FramesDir reports the frame image directory for a video stem.
func (s *Store) FramesDir(stem string) string {
	return filepath.Join(s.dir, stem+"_frames")
}

// Load reads the persisted artifact. A missing document returns (nil, nil):
// the job has never run.
func (s *Store) Load(stem string) (*Artifact, error) {
	data, err := os.ReadFile(s.ArtifactPath(stem))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", stem, err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", stem, err)
	}
	if artifact.Frames == nil {
		artifact.Frames = make(map[string]analysis.FrameRecord)
	}
	return &artifact, nil
}

// Save writes the artifact atomically: a temp file in the same directory
// renamed over the target, so a crash never leaves a half-written document.
// Map keys marshal in sorted order, which keeps the already-completed
// portion byte-stable across resumes.
func (s *Store) Save(stem string, artifact *Artifact) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", stem, err)
	}
	data = append(data, '\n')

	target := s.ArtifactPath(stem)
	tmp, err := os.CreateTemp(s.dir, stem+"_analysis-*.tmp")
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", stem, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write artifact %s: %w", stem, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write artifact %s: %w", stem, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace artifact %s: %w", stem, err)
	}
	return nil
}

// JobLock holds exclusive ownership of a job's artifact.
type JobLock struct {
	fl *flock.Flock
}

// Release gives up the lock.
func (l *JobLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Acquire takes the per-job file lock. Concurrent writers to the same job
// are rejected with ErrJobLocked rather than serialized.
func (s *Store) Acquire(stem string) (*JobLock, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output dir: %w", err)
	}
	fl := flock.New(filepath.Join(s.dir, stem+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", stem, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, stem)
	}
	return &JobLock{fl: fl}, nil
}

// List enumerates the video stems that have persisted artifacts.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	var stems []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, "_analysis.json") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(name, "_analysis.json"))
	}
	sort.Strings(stems)
	return stems, nil
}
