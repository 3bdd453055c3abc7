package analysis

import "strings"

// minPauseSeconds is the smallest inter-segment gap counted as a pause;
// anything shorter is ordinary articulation spacing.
const minPauseSeconds = 0.3

// Regroup folds segments into paragraphs, starting a new paragraph whenever
// the gap to the previous segment exceeds pauseThreshold seconds. Segments
// arrive ordered by start offset.
func Regroup(segments []Segment, pauseThreshold float64) []Paragraph {
	if len(segments) == 0 {
		return nil
	}
	if pauseThreshold <= 0 {
		pauseThreshold = 1.5
	}

	var paragraphs []Paragraph
	current := Paragraph{Start: segments[0].Start, End: segments[0].End, Text: strings.TrimSpace(segments[0].Text)}
	for _, seg := range segments[1:] {
		if seg.Start-current.End > pauseThreshold {
			paragraphs = append(paragraphs, current)
			current = Paragraph{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)}
			continue
		}
		current.End = seg.End
		current.Text = strings.TrimSpace(current.Text + " " + strings.TrimSpace(seg.Text))
	}
	return append(paragraphs, current)
}

// DeriveRate computes speaking-rate metrics from transcript timing.
func DeriveRate(segments []Segment) RateMetrics {
	if len(segments) == 0 {
		return RateMetrics{}
	}

	var words int
	for _, seg := range segments {
		words += len(strings.Fields(seg.Text))
	}

	span := segments[len(segments)-1].End - segments[0].Start
	var pauseTotal float64
	var pauses int
	for i := 1; i < len(segments); i++ {
		gap := segments[i].Start - segments[i-1].End
		if gap >= minPauseSeconds {
			pauses++
			pauseTotal += gap
		}
	}

	m := RateMetrics{
		WordCount:  words,
		PauseCount: pauses,
	}
	if span > 0 {
		m.WordsPerMinute = float64(words) / (span / 60)
		m.PauseRatio = pauseTotal / span
	}
	if pauses > 0 {
		m.AvgPauseSeconds = pauseTotal / float64(pauses)
	}
	return m
}

// clampPoints trims a strengths/improvements list to its bound.
func clampPoints(points []string) []string {
	if len(points) > MaxListedPoints {
		return points[:MaxListedPoints]
	}
	return points
}

// joinParagraphs flattens a transcript for the feedback request body.
func joinParagraphs(paragraphs []Paragraph) string {
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}
