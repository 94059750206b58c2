// Package summarizer recursively summarizes documents that do not fit a
// model's token budget: merge the text into chunks, extract notes from every
// chunk, compress the notes until one is left and write the final text.
//
// Every phase keeps its progress in a Snapshot that is checkpointed after
// each traced operation, so a failed run resumes at the call that failed.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"doc_summarizer/internal/checkpoint"
	"doc_summarizer/internal/chunker"
	"doc_summarizer/internal/config"
	"doc_summarizer/internal/events"
	"doc_summarizer/internal/llm"
	"doc_summarizer/internal/tokens"
	"doc_summarizer/pkg/logger"
)

var (
	// ErrEmptyInput is returned by Summarize when there are no fragments and
	// nothing to resume.
	ErrEmptyInput = errors.New("empty input: no fragments and no resumable run")

	// ErrNoProgress is returned when a compression round reduces neither the
	// number of notes nor their total size.
	ErrNoProgress = errors.New("compression made no progress")

	// ErrTooManyRounds is returned when compression hits the round cap.
	ErrTooManyRounds = errors.New("compression exceeded the round limit")

	// ErrNothingToRewrite is returned by Rewrite when no run reached the writer.
	ErrNothingToRewrite = errors.New("no compressed notes to rewrite from")

	ErrConfigNil          = errors.New("config is nil")
	ErrCompleterRequired  = errors.New("completer is required in config")
	ErrCounterRequired    = errors.New("token counter is required in config")
	ErrTokenLimitRequired = errors.New("token limit must be positive")
)

// Traced operation names.
const (
	opSummarize = "summarize"
	opMerge     = "merge"
	opExtract   = "extract"
	opCompress  = "compress"
	opWrite     = "write"
	opRewrite   = "rewrite"
)

// Config configures a Summarizer.
//
// Required fields:
//   - Completer: issues the model calls
//   - Counter: measures fragments against TokenLimit
//   - TokenLimit: per request content budget
//
// Optional fields:
//   - Store: where snapshots go; nil keeps state in memory only
//   - Sink, Metrics, Emitter: logging, ES metrics and progress events
//   - Model: defaults to Completer.ModelName()
//   - Options: empty fields fall back to the config package defaults
//   - MaxCompressRounds: default config.DefaultMaxCompressRounds
type Config struct {
	Completer  llm.Completer
	Counter    tokens.Counter
	TokenLimit int

	Store   checkpoint.Store
	Sink    *logger.Sink
	Metrics *logger.Metrics
	Emitter events.Emitter

	Model             string
	Options           Options
	MaxCompressRounds int
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.Completer == nil {
		return ErrCompleterRequired
	}
	if c.Counter == nil {
		return ErrCounterRequired
	}
	if c.TokenLimit <= 0 {
		return ErrTokenLimitRequired
	}
	return nil
}

// Summarizer is the pipeline orchestrator. It is not safe for concurrent use.
type Summarizer struct {
	llm       llm.Completer
	counter   tokens.Counter
	merger    *chunker.Merger
	store     checkpoint.Store
	sink      *logger.Sink
	metrics   *logger.Metrics
	emitter   events.Emitter
	maxRounds int

	state Snapshot
	stack []string
}

// New creates a Summarizer with a fresh run id and empty phase states.
func New(cfg *Config) (*Summarizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	snap := Snapshot{
		Version: SnapshotVersion,
		RunID:   uuid.New().String(),
	}
	return build(cfg, snap), nil
}

// Restore rebuilds a Summarizer from snap. Non-empty Model, TokenLimit and
// Options fields of cfg override what the snapshot recorded.
func Restore(cfg *Config, snap *Snapshot) (*Summarizer, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if snap == nil {
		return nil, fmt.Errorf("restore: %w", checkpoint.ErrNotFound)
	}
	merged := *cfg
	if merged.TokenLimit <= 0 {
		merged.TokenLimit = snap.TokenLimit
	}
	if merged.Model == "" {
		merged.Model = snap.Model
	}
	merged.Options = mergeOptions(snap.Options, cfg.Options)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return build(&merged, *snap), nil
}

// Load reads the snapshot from cfg.Store and restores it.
func Load(ctx context.Context, cfg *Config) (*Summarizer, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("load: no checkpoint store configured")
	}
	snap, err := ReadSnapshot(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	return Restore(cfg, snap)
}

func build(cfg *Config, snap Snapshot) *Summarizer {
	model := cfg.Model
	if model == "" {
		model = cfg.Completer.ModelName()
	}
	maxRounds := cfg.MaxCompressRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultMaxCompressRounds
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NopEmitter{}
	}

	snap.Version = SnapshotVersion
	snap.Model = model
	snap.TokenLimit = cfg.TokenLimit
	snap.Options = withDefaults(cfg.Options)
	if snap.RunID == "" {
		snap.RunID = uuid.New().String()
	}

	return &Summarizer{
		llm:       cfg.Completer,
		counter:   cfg.Counter,
		merger:    &chunker.Merger{Counter: cfg.Counter, Limit: cfg.TokenLimit, Model: model},
		store:     cfg.Store,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		emitter:   emitter,
		maxRounds: maxRounds,
		state:     snap,
	}
}

func withDefaults(o Options) Options {
	c := config.Config{Genre: o.Genre, Topic: o.Topic, Language: o.Language, Choices: o.Choices}
	return Options{
		Genre:    c.GetGenre(),
		Topic:    c.GetTopic(),
		Language: c.GetLanguage(),
		Context:  o.Context,
		Choices:  c.GetChoices(),
	}
}

func mergeOptions(base, override Options) Options {
	if override.Genre != "" {
		base.Genre = override.Genre
	}
	if override.Topic != "" {
		base.Topic = override.Topic
	}
	if override.Language != "" {
		base.Language = override.Language
	}
	if override.Context != "" {
		base.Context = override.Context
	}
	if override.Choices > 0 {
		base.Choices = override.Choices
	}
	return base
}

// RunID identifies the run across checkpoints, logs and events.
func (s *Summarizer) RunID() string { return s.state.RunID }

// Options returns the effective prompt options.
func (s *Summarizer) Options() Options { return s.state.Options }

// Usage returns the token usage accumulated over every model call.
func (s *Summarizer) Usage() llm.Usage { return s.state.Usage }

// Snapshot returns a copy of the current state.
func (s *Summarizer) Snapshot() Snapshot {
	return cloneSnapshot(&s.state)
}

// Summarize runs the whole pipeline over fragments, or resumes the
// interrupted run when there is one, in which case fragments are ignored.
func (s *Summarizer) Summarize(ctx context.Context, fragments []string) (string, error) {
	var text string
	timer := logger.NewTimer()
	err := s.trace(ctx, opSummarize, logger.PhaseRun, func() error {
		var err error
		text, err = s.summarize(ctx, fragments)
		return err
	})
	if err != nil {
		return "", err
	}
	s.emit(events.TypeRunCompleted, events.RunCompletedData{
		Model:            s.state.Model,
		ContentLen:       len(text),
		PromptTokens:     s.state.Usage.PromptTokens,
		CompletionTokens: s.state.Usage.CompletionTokens,
		DurationMs:       timer.ElapsedMs(),
	})
	return text, nil
}

func (s *Summarizer) summarize(ctx context.Context, fragments []string) (string, error) {
	s.sink.Log("Start summarizing.")
	run := &s.state.Run

	if len(fragments) == 0 && !run.Chunks.Done && !s.state.Merge.Active {
		return "", ErrEmptyInput
	}
	if run.Active {
		s.emit(events.TypeInfo, events.InfoData{Message: "resuming run " + s.state.RunID})
	} else {
		*run = RunState{Active: true}
	}

	if !run.Chunks.Done {
		s.sink.Logf("Phase 0: merging %d fragments of the original text.", len(fragments))
		chunks, err := s.merge(ctx, fragments, "")
		if err != nil {
			return "", err
		}
		run.Chunks.Set(chunks)
	}

	chunks := run.Chunks.Value
	if len(chunks) == 1 {
		s.sink.Log("The original text fits in one chunk, returning it unchanged.")
		s.emit(events.TypeInfo, events.InfoData{Message: "input fits in one chunk, no model calls needed"})
		s.state.resetPhases()
		return chunks[0], nil
	}

	if !run.Extracted.Done {
		s.sink.Logf("Phase 1: extracting notes from %d chunks.", len(chunks))
		notes, err := s.extract(ctx, chunks, false)
		if err != nil {
			return "", err
		}
		run.Extracted.Set(notes)
	}
	if !run.Notes.Done {
		notes, err := s.merge(ctx, run.Extracted.Value, chunker.NoteDelimiter)
		if err != nil {
			return "", err
		}
		run.Notes.Set(notes)
	}

	if !run.FinalNotes.Done {
		notes := run.Notes.Value
		if len(notes) > 1 {
			s.sink.Logf("Phase 2: compressing %d notes.", len(notes))
			final, err := s.compress(ctx, notes)
			if err != nil {
				return "", err
			}
			run.FinalNotes.Set(final)
		} else {
			s.sink.Log("Skipping phase 2, the notes fit in one chunk.")
			run.FinalNotes.Set(notes[0])
		}
	}

	s.sink.Log("Phase 3: writing the final text.")
	final := run.FinalNotes.Value
	text, err := s.write(ctx, final)
	if err != nil {
		return "", err
	}
	s.state.LastNotes = final
	s.state.resetPhases()
	return text, nil
}

// Rewrite regenerates only the final text, from the notes of an interrupted
// run that already finished compressing or else from the last completed run.
func (s *Summarizer) Rewrite(ctx context.Context) (string, error) {
	var text string
	err := s.trace(ctx, opRewrite, logger.PhaseWrite, func() error {
		notes := s.state.LastNotes
		inFlight := s.state.Run.Active && s.state.Run.FinalNotes.Done
		if inFlight {
			notes = s.state.Run.FinalNotes.Value
		}
		if s.state.Write.Active {
			notes = s.state.Write.Notes
		}
		if notes == "" {
			return ErrNothingToRewrite
		}

		var err error
		text, err = s.write(ctx, notes)
		if err != nil {
			return err
		}
		s.state.LastNotes = notes
		if inFlight {
			s.state.resetPhases()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// trace pushes op onto the stack, runs fn, pops, then checkpoints whether fn
// failed or not. Failures are logged with the stack they happened in.
func (s *Summarizer) trace(ctx context.Context, op, phase string, fn func() error) error {
	if len(s.stack) == 0 {
		s.state.Stack = nil
	}
	s.stack = append(s.stack, op)
	trail := strings.Join(s.stack, " > ")
	timer := logger.NewTimer()
	s.emit(events.TypePhaseStarted, events.PhaseData{Phase: op, Stack: trail})

	err := fn()

	if err != nil {
		s.sink.Log(fmt.Sprintf("Error in %s:", trail), err.Error())
		if len(s.state.Stack) == 0 {
			s.state.Stack = append([]string(nil), s.stack...)
		}
		s.emit(events.TypePhaseFailed, events.ErrorData{Phase: op, Message: err.Error(), Cursor: s.cursor(op)})
		s.metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTPhaseError,
			Phase:      phase,
			Event:      logger.EventPhaseError,
			RunID:      s.state.RunID,
			Model:      s.state.Model,
			DurationMs: timer.ElapsedMs(),
			Error:      err.Error(),
			Detail:     trail,
		})
	} else {
		s.emit(events.TypePhaseCompleted, events.PhaseData{Phase: op, Stack: trail, DurationMs: timer.ElapsedMs()})
		s.metrics.Emit(logger.MetricsEvent{
			LogType:    logger.LTPhaseEnd,
			Phase:      phase,
			Event:      logger.EventPhaseEnd,
			RunID:      s.state.RunID,
			Model:      s.state.Model,
			DurationMs: timer.ElapsedMs(),
			Detail:     trail,
		})
	}
	s.stack = s.stack[:len(s.stack)-1]

	// the snapshot is written even when ctx is what failed
	if saveErr := s.Save(context.WithoutCancel(ctx)); saveErr != nil {
		if err == nil {
			return saveErr
		}
		s.sink.Logf("Checkpoint after failed %s also failed: %v", op, saveErr)
	}
	return err
}

// cursor reports how far op got: fragments merged, chunks extracted or
// compression rounds finished.
func (s *Summarizer) cursor(op string) int {
	switch op {
	case opMerge:
		return s.state.Merge.Cursor
	case opExtract:
		return s.state.Extract.Cursor
	case opCompress:
		return s.state.Compress.Round
	}
	return 0
}

func (s *Summarizer) merge(ctx context.Context, fragments []string, delimiter string) ([]string, error) {
	var merged []string
	err := s.trace(ctx, opMerge, logger.PhaseMerge, func() error {
		n := len(fragments)
		if s.state.Merge.Active {
			n = len(s.state.Merge.Input)
			s.sink.Logf("Resuming merge of %d chunks at %d.", n, s.state.Merge.Cursor)
		} else {
			s.sink.Logf("Merging %d chunks.", n)
		}
		var err error
		merged, err = s.merger.Merge(&s.state.Merge, fragments, delimiter)
		if err != nil {
			return err
		}
		s.sink.Logf("%d -> %d chunks", n, len(merged))
		return nil
	})
	return merged, err
}

func (s *Summarizer) complete(ctx context.Context, template, text string, n int) (*llm.Response, error) {
	o := s.state.Options
	resp, err := s.llm.Complete(ctx, template, map[string]any{
		llm.VarText:     text,
		llm.VarTopic:    o.Topic,
		llm.VarLanguage: o.Language,
		llm.VarContext:  o.Context,
		llm.VarGenre:    o.Genre,
	}, n)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: template=%s returned no choices", llm.ErrModelCallFailed, template)
	}
	s.state.Usage.Add(resp.Usage)
	return resp, nil
}

func (s *Summarizer) emit(eventType string, data any) {
	s.emitter.Emit(events.NewEvent(eventType, s.state.RunID, data))
}

func (s *Summarizer) totalTokens(notes []string) int {
	total := 0
	for _, n := range notes {
		total += s.counter.Count(n)
	}
	return total
}
