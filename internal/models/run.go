package models

import "time"

// Stage names a pipeline step
type Stage string

const (
	StageHunt    Stage = "hunt"
	StageAnalyze Stage = "analyze"
	StageNarrate Stage = "narrate"
	StageAll     Stage = "all"
)

// ParseStage validates a -stage flag value
func ParseStage(s string) (Stage, bool) {
	switch Stage(s) {
	case StageHunt, StageAnalyze, StageNarrate, StageAll:
		return Stage(s), true
	}
	return "", false
}

// HuntReport counts what discovery produced
type HuntReport struct {
	Window      TimeWindow    `json:"window"`
	StopReason  string        `json:"stop_reason"`
	ScrollSteps int           `json:"scroll_steps"`
	Candidates  int           `json:"candidates"`
	Accepted    int           `json:"accepted"`
	Inserted    int           `json:"inserted"`
	Duplicates  int           `json:"duplicates"`
	Failed      int           `json:"failed"`   // fetch errors
	Excluded    int           `json:"excluded"` // unknown time, out of window, empty body
	Duration    time.Duration `json:"duration"`
}

// AnalyzeReport describes the summary stage
type AnalyzeReport struct {
	SummaryID   string        `json:"summary_id"`
	Articles    int           `json:"articles"`
	ReportFile  string        `json:"report_file"`
	UploadedKey string        `json:"uploaded_key,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// NarrateReport describes the synthesis stage
type NarrateReport struct {
	SummaryID   string        `json:"summary_id"`
	Chunks      int           `json:"chunks"`
	Oversized   int           `json:"oversized"`
	AudioFile   string        `json:"audio_file"`
	AudioBytes  int           `json:"audio_bytes"`
	UploadedKey string        `json:"uploaded_key,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// RunReport aggregates one pipeline invocation
type RunReport struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Hunt      *HuntReport    `json:"hunt,omitempty"`
	Analyze   *AnalyzeReport `json:"analyze,omitempty"`
	Narrate   *NarrateReport `json:"narrate,omitempty"`
	Duration  time.Duration  `json:"duration"`
}
