// Package scorer wraps one inference call against the visual-language
// backend: it serializes a frame into a scoring request, parses the
// structured response, validates it, and classifies failures.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Result is a validated per-frame scoring outcome.
type Result struct {
	Score       float64
	Tags        []string
	Description string
	// Warnings records non-fatal validation notes, e.g. an out-of-range
	// score that was clamped.
	Warnings []string
	// Raw preserves the model's content payload for debugging.
	Raw string
}

// Scorer performs a single scoring call for one image.
type Scorer interface {
	Score(ctx context.Context, imagePath string) (Result, error)
}

type scorePayload struct {
	Score       *float64 `json:"score"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
}

// Models wrap JSON in prose or code fences often enough that a bare
// unmarshal is tried first and the outermost object is extracted as a
// fallback.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parsePayload validates model content against the expected
// {score, tags, description} shape. Scores outside [0,100] are clamped
// with a recorded warning rather than rejected; that policy is fixed here
// so every backend behaves identically.
func parsePayload(content string) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{}, malformedError("empty content")
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		extracted := jsonObjectPattern.FindString(content)
		if extracted == "" {
			return Result{}, malformedError("content is not a JSON object: %q", truncate(content, 200))
		}
		if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
			return Result{}, malformedError("parse payload: %v", err)
		}
	}
	if payload.Score == nil {
		return Result{}, malformedError("payload missing numeric score")
	}

	result := Result{
		Score:       *payload.Score,
		Tags:        payload.Tags,
		Description: strings.TrimSpace(payload.Description),
		Raw:         content,
	}
	if result.Score < 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("score %v below range, clamped to 0", result.Score))
		result.Score = 0
	}
	if result.Score > 100 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("score %v above range, clamped to 100", result.Score))
		result.Score = 100
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
