package scorer

import (
	"fmt"
	"strings"
)

// Rubric is the fixed instruction payload sent with every frame: the model's
// role, the scoring bands, and the example tag vocabulary. Configuration
// data, not logic.
type Rubric struct {
	Role         string
	ScoringBands []string
	ExampleTags  []string
}

// DefaultRubric returns the built-in content-intensity rubric.
func DefaultRubric() Rubric {
	return Rubric{
		Role: "You are a visual content analyst. Rate the content intensity of the image " +
			"on a continuous 0-100 scale, assign descriptive tags, and describe what is shown.",
		ScoringBands: []string{
			"0-20: neutral everyday content",
			"21-40: mildly suggestive or stylized content",
			"41-70: explicit or intense content",
			"71-100: extreme content",
		},
		ExampleTags: []string{
			"person", "close-up", "indoor", "outdoor", "text overlay",
			"suggestive pose", "partial nudity", "explicit",
		},
	}
}

// Prompt assembles the full instruction string for one scoring request.
func (r Rubric) Prompt() string {
	var b strings.Builder
	b.WriteString(r.Role)
	b.WriteString("\n\nExample tags for reference:\n")
	for _, tag := range r.ExampleTags {
		fmt.Fprintf(&b, "  - %s\n", tag)
	}
	b.WriteString("\nScoring rules:\n")
	for _, band := range r.ScoringBands {
		fmt.Fprintf(&b, "  %s\n", band)
	}
	b.WriteString("\nRespond with valid JSON only, in exactly this shape:\n")
	b.WriteString(`{"score": <number 0-100>, "tags": ["<tag>", ...], "description": "<text>"}`)
	b.WriteString("\n\nAnalyze the image and provide the response in the specified JSON format.")
	return b.String()
}
