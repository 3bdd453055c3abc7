package analysis

import (
	"math"
	"testing"
)

func TestRegroup_SplitsOnLongPauses(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2, Text: "Hello everyone."},
		{Start: 2.4, End: 4, Text: "Today I want to talk about trains."},
		{Start: 6.5, End: 8, Text: "First, the history."}, // 2.5s pause
		{Start: 8.2, End: 10, Text: "It begins in 1825."},
	}

	paragraphs := Regroup(segments, 1.5)
	if len(paragraphs) != 2 {
		t.Fatalf("len(paragraphs) = %d, want 2", len(paragraphs))
	}
	if paragraphs[0].Text != "Hello everyone. Today I want to talk about trains." {
		t.Errorf("paragraph 0 = %q", paragraphs[0].Text)
	}
	if paragraphs[1].Text != "First, the history. It begins in 1825." {
		t.Errorf("paragraph 1 = %q", paragraphs[1].Text)
	}
	if paragraphs[0].Start != 0 || paragraphs[0].End != 4 {
		t.Errorf("paragraph 0 span = [%v, %v], want [0, 4]", paragraphs[0].Start, paragraphs[0].End)
	}
	if paragraphs[1].Start != 6.5 || paragraphs[1].End != 10 {
		t.Errorf("paragraph 1 span = [%v, %v], want [6.5, 10]", paragraphs[1].Start, paragraphs[1].End)
	}
}

func TestRegroup_ThresholdIsConfigurable(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 2, End: 3, Text: "b"}, // 1s pause
	}

	if got := len(Regroup(segments, 0.5)); got != 2 {
		t.Errorf("tight threshold: paragraphs = %d, want 2", got)
	}
	if got := len(Regroup(segments, 2.0)); got != 1 {
		t.Errorf("loose threshold: paragraphs = %d, want 1", got)
	}
}

func TestRegroup_Empty(t *testing.T) {
	if got := Regroup(nil, 1.5); got != nil {
		t.Errorf("Regroup(nil) = %v, want nil", got)
	}
}

func TestDeriveRate(t *testing.T) {
	// 60 seconds of span, 12 words, two 5-second pauses.
	segments := []Segment{
		{Start: 0, End: 20, Text: "one two three four"},
		{Start: 25, End: 45, Text: "five six seven eight"},
		{Start: 50, End: 60, Text: "nine ten eleven twelve"},
	}

	m := DeriveRate(segments)
	if m.WordCount != 12 {
		t.Errorf("WordCount = %d, want 12", m.WordCount)
	}
	if m.PauseCount != 2 {
		t.Errorf("PauseCount = %d, want 2", m.PauseCount)
	}
	if math.Abs(m.WordsPerMinute-12) > 1e-9 {
		t.Errorf("WordsPerMinute = %v, want 12", m.WordsPerMinute)
	}
	if math.Abs(m.PauseRatio-10.0/60.0) > 1e-9 {
		t.Errorf("PauseRatio = %v, want %v", m.PauseRatio, 10.0/60.0)
	}
	if math.Abs(m.AvgPauseSeconds-5) > 1e-9 {
		t.Errorf("AvgPauseSeconds = %v, want 5", m.AvgPauseSeconds)
	}
}

func TestDeriveRate_ShortGapsAreNotPauses(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 1, Text: "quick"},
		{Start: 1.1, End: 2, Text: "words"}, // 0.1s gap, below the pause floor
	}
	m := DeriveRate(segments)
	if m.PauseCount != 0 {
		t.Errorf("PauseCount = %d, want 0", m.PauseCount)
	}
	if m.AvgPauseSeconds != 0 {
		t.Errorf("AvgPauseSeconds = %v, want 0", m.AvgPauseSeconds)
	}
}

func TestDeriveRate_Empty(t *testing.T) {
	m := DeriveRate(nil)
	if m.WordCount != 0 || m.WordsPerMinute != 0 {
		t.Errorf("DeriveRate(nil) = %+v, want zero", m)
	}
}

func TestClampPoints(t *testing.T) {
	long := []string{"a", "b", "c", "d", "e", "f", "g"}
	if got := len(clampPoints(long)); got != MaxListedPoints {
		t.Errorf("len = %d, want %d", got, MaxListedPoints)
	}
	short := []string{"a"}
	if got := len(clampPoints(short)); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
}
