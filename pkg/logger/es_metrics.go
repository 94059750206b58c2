package logger

import (
	"context"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
)

const (
	MetricsIndex = "doc_summarizer_metrics"

	// Phases
	PhaseMerge    = "merge"
	PhaseExtract  = "extract"
	PhaseCompress = "compress"
	PhaseWrite    = "write"
	PhaseRun      = "run"

	// LogType values, used for filtering in ES
	LTModelCall      = "llm.call"
	LTModelError     = "llm.error"
	LTPhaseEnd       = "pipeline.phase_end"
	LTPhaseError     = "pipeline.phase_error"
	LTCheckpointSave = "checkpoint.save"

	EventCallComplete = "call_complete"
	EventCallError    = "call_error"
	EventPhaseEnd     = "phase_end"
	EventPhaseError   = "phase_error"
)

// MetricsEvent is one metrics document written to ES.
type MetricsEvent struct {
	Timestamp        time.Time   `json:"@timestamp"`
	LogType          string      `json:"log_type"`
	Phase            string      `json:"phase,omitempty"`
	Event            string      `json:"event"`
	RunID            string      `json:"run_id,omitempty"`
	Model            string      `json:"model,omitempty"`
	Template         string      `json:"template,omitempty"`
	Choices          int         `json:"choices,omitempty"`
	PromptTokens     int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int         `json:"completion_tokens,omitempty"`
	DurationMs       int64       `json:"duration_ms,omitempty"`
	Error            string      `json:"error,omitempty"`
	Detail           interface{} `json:"detail,omitempty"`
}

// Metrics reports MetricsEvents to ES.
type Metrics struct {
	es    *elasticsearch.Client
	index string
}

// NewMetrics creates a reporter; with a nil client every Emit is skipped.
func NewMetrics(es *elasticsearch.Client) *Metrics {
	return &Metrics{es: es, index: MetricsIndex}
}

// Emit reports one event. Failures are logged as warnings and never block the run.
func (m *Metrics) Emit(evt MetricsEvent) {
	if m == nil || m.es == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	logType := evt.LogType
	if logType == "" {
		logType = evt.Phase + "." + evt.Event
	}
	rec := Record{Kind: logType, RunID: evt.RunID, Timestamp: evt.Timestamp, Data: evt}
	if err := Ship(context.Background(), m.es, m.index, rec); err != nil {
		Warnf("[Metrics] ES write failed (log_type=%s): %v", logType, err)
	}
}

// Timer measures elapsed wall time.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ElapsedMs() int64 {
	return time.Since(t.start).Milliseconds()
}
