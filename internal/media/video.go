// Package media discovers video files and reads container metadata through
// ffprobe.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Video describes a source file. Immutable once discovered; the pipeline
// treats it as read-only.
type Video struct {
	Path      string
	Filename  string
	Stem      string // filename without extension, used as the job/video key
	SizeBytes int64
	Duration  time.Duration
}

var videoExtensions = map[string]struct{}{
	".mp4": {},
	".avi": {},
	".mov": {},
	".mkv": {},
	".wmv": {},
}

// IsVideoFile reports whether the filename carries a recognized container
// extension.
func IsVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Stem strips the extension from a video filename.
func Stem(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe opens the video with ffprobe and returns its metadata. Failure here
// means the source is unreadable and fails the whole job.
func Probe(ctx context.Context, path string) (Video, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Video{}, fmt.Errorf("open video %s: %w", path, err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration,size",
		"-of", "json",
		"--", path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Video{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return Video{}, fmt.Errorf("ffprobe parse %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return Video{}, fmt.Errorf("ffprobe duration %s: %w", path, err)
	}

	return Video{
		Path:      path,
		Filename:  filepath.Base(path),
		Stem:      Stem(path),
		SizeBytes: info.Size(),
		Duration:  time.Duration(seconds * float64(time.Second)),
	}, nil
}

// List enumerates video files in dir, sorted by filename. Durations are not
// probed; listing is a cheap stat-only operation for the dashboard.
func List(dir string) ([]Video, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read video dir %s: %w", dir, err)
	}

	var videos []Video
	for _, entry := range entries {
		if entry.IsDir() || !IsVideoFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		videos = append(videos, Video{
			Path:      filepath.Join(dir, entry.Name()),
			Filename:  entry.Name(),
			Stem:      Stem(entry.Name()),
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Filename < videos[j].Filename })
	return videos, nil
}
