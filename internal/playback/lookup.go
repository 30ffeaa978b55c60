package playback

import (
	"sort"
	"time"

	"github.com/framesift/framesift/internal/analysis"
	"github.com/framesift/framesift/internal/sampler"
)

// FrameAt maps a playhead position to the analyzed frame it falls within:
// the record with the latest timestamp at or before position. The second
// return is false when the position precedes every frame or no record has a
// parseable timestamp.
func FrameAt(records []analysis.FrameRecord, position time.Duration) (analysis.FrameRecord, bool) {
	type timed struct {
		at  time.Duration
		rec analysis.FrameRecord
	}
	timeline := make([]timed, 0, len(records))
	for _, rec := range records {
		at, err := sampler.ParseTimecode(rec.Timestamp)
		if err != nil {
			continue
		}
		timeline = append(timeline, timed{at: at, rec: rec})
	}
	if len(timeline) == 0 {
		return analysis.FrameRecord{}, false
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].at < timeline[j].at })

	// First frame strictly past the position; the one before it covers it.
	idx := sort.Search(len(timeline), func(i int) bool { return timeline[i].at > position })
	if idx == 0 {
		return analysis.FrameRecord{}, false
	}
	return timeline[idx-1].rec, true
}
