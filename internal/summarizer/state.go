package summarizer

import (
	"time"

	"doc_summarizer/internal/chunker"
	"doc_summarizer/internal/llm"
)

// SnapshotVersion is bumped whenever the persisted layout changes incompatibly.
const SnapshotVersion = 1

// Slot is a value that is either still pending or already computed.
// A phase resumes at its first slot that is not Done.
type Slot[T any] struct {
	Value T    `json:"value"`
	Done  bool `json:"done"`
}

// Set stores v and marks the slot complete.
func (s *Slot[T]) Set(v T) {
	s.Value = v
	s.Done = true
}

// Options are the knobs of the prompts and the writer.
type Options struct {
	Genre    string `json:"genre"`
	Topic    string `json:"topic"`
	Language string `json:"language"`
	Context  string `json:"context"`
	Choices  int    `json:"choices"`
}

// RunState tracks one summarize call across its phases.
type RunState struct {
	Active     bool           `json:"active"`
	Chunks     Slot[[]string] `json:"chunks"`
	Extracted  Slot[[]string] `json:"extracted"`
	Notes      Slot[[]string] `json:"notes"`
	FinalNotes Slot[string]   `json:"final_notes"`
}

// ExtractState is the in-flight extraction. Fragments are replaced by their
// notes in place, so everything before Cursor is already extracted.
type ExtractState struct {
	Active    bool     `json:"active"`
	Compress  bool     `json:"compress"`
	Fragments []string `json:"fragments,omitempty"`
	Cursor    int      `json:"cursor"`
}

// CompressState is the in-flight recursive compression.
type CompressState struct {
	Active    bool           `json:"active"`
	Notes     []string       `json:"notes,omitempty"`
	Round     int            `json:"round"`
	Extracted Slot[[]string] `json:"extracted"`
}

// WriteState holds the notes the writer was called with until it succeeds.
type WriteState struct {
	Active bool   `json:"active"`
	Notes  string `json:"notes,omitempty"`
}

// Snapshot is everything a Summarizer needs to pick a run back up.
type Snapshot struct {
	Version    int       `json:"version"`
	RunID      string    `json:"run_id"`
	Model      string    `json:"model"`
	TokenLimit int       `json:"token_limit"`
	Options    Options   `json:"options"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Stack is the operation trace at the most recent failure.
	Stack []string `json:"stack,omitempty"`

	Run      RunState      `json:"run"`
	Merge    chunker.State `json:"merge"`
	Extract  ExtractState  `json:"extract"`
	Compress CompressState `json:"compress"`
	Write    WriteState    `json:"write"`

	// LastNotes are the compressed notes of the last run that reached the
	// writer. They survive the reset so the final text can be rewritten.
	LastNotes string    `json:"last_notes,omitempty"`
	Usage     llm.Usage `json:"usage"`
}

// InFlight reports whether a run was interrupted and can be resumed.
func (s *Snapshot) InFlight() bool {
	return s.Run.Active || s.Merge.Active || s.Extract.Active || s.Compress.Active || s.Write.Active
}

// resetPhases clears every phase state; run identity, options, LastNotes and
// Usage are kept.
func (s *Snapshot) resetPhases() {
	s.Stack = nil
	s.Run = RunState{}
	s.Merge.Reset()
	s.Extract = ExtractState{}
	s.Compress = CompressState{}
	s.Write = WriteState{}
}
