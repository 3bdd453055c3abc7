package analysis

// Phase is one stage of an in-flight analysis request.
type Phase string

const (
	PhaseQueued          Phase = "queued"
	PhaseExtractingAudio Phase = "extracting_audio"
	PhaseTranscribing    Phase = "transcribing"
	PhaseAnalyzing       Phase = "analyzing"
	PhaseComplete        Phase = "complete"
	PhaseError           Phase = "error"
)

// ProgressFunc receives phase updates for one request. May be nil.
type ProgressFunc func(requestID string, phase Phase)

// Segment is one transcribed span with offsets in seconds from the start
// of the recording.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Paragraph groups consecutive segments separated by pauses shorter than
// the configured threshold.
type Paragraph struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// RateMetrics are speaking-rate figures derived from the transcript timing.
type RateMetrics struct {
	WordsPerMinute  float64 `json:"words_per_minute"`
	PauseRatio      float64 `json:"pause_ratio"`
	WordCount       int     `json:"word_count"`
	PauseCount      int     `json:"pause_count"`
	AvgPauseSeconds float64 `json:"avg_pause_seconds"`
}

// Feedback is the structured review returned for one recording.
type Feedback struct {
	Score        int         `json:"score"`
	Strengths    []string    `json:"strengths"`
	Improvements []string    `json:"improvements"`
	Summary      string      `json:"summary"`
	Metrics      RateMetrics `json:"metrics"`
}

// Result is the outcome of one completed analysis request.
type Result struct {
	RequestID  string      `json:"request_id"`
	Transcript []Paragraph `json:"transcript"`
	Feedback   Feedback    `json:"feedback"`
}

// MaxListedPoints bounds the strengths and improvements lists.
const MaxListedPoints = 5
