package events

import (
	"encoding/json"
	"fmt"

	"doc_summarizer/pkg/logger"
)

// StartPrinter logs a one-line progress message per event to the console.
// The returned channel is closed when the emitter is closed.
func StartPrinter(emitter Emitter) <-chan struct{} {
	ch := emitter.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			if line := Describe(evt); line != "" {
				logger.Infof("%s", line)
			}
		}
	}()
	return done
}

// Describe renders an event for humans. Unknown types render as "".
func Describe(evt Event) string {
	switch evt.Type {
	case TypePhaseStarted:
		var d PhaseData
		if json.Unmarshal(evt.Data, &d) == nil {
			return "[" + d.Phase + "] started"
		}
	case TypePhaseCompleted:
		var d PhaseData
		if json.Unmarshal(evt.Data, &d) == nil {
			return fmt.Sprintf("[%s] completed in %dms", d.Phase, d.DurationMs)
		}
	case TypePhaseFailed:
		var d ErrorData
		if json.Unmarshal(evt.Data, &d) == nil {
			return fmt.Sprintf("[%s] failed at %d: %s", d.Phase, d.Cursor, d.Message)
		}
	case TypeChunkExtracted:
		var d ChunkExtractedData
		if json.Unmarshal(evt.Data, &d) == nil {
			return fmt.Sprintf("[extract] chunk %d/%d -> %d tokens of notes", d.Index+1, d.Total, d.NoteTokens)
		}
	case TypeRoundCompacted:
		var d RoundCompactedData
		if json.Unmarshal(evt.Data, &d) == nil {
			return fmt.Sprintf("[compress] round %d: %d -> %d notes (%d tokens)", d.Round, d.NotesBefore, d.NotesAfter, d.TokensAfter)
		}
	case TypeRunCompleted:
		var d RunCompletedData
		if json.Unmarshal(evt.Data, &d) == nil {
			return fmt.Sprintf("[run] done with %s in %dms: %d chars, %d prompt + %d completion tokens",
				d.Model, d.DurationMs, d.ContentLen, d.PromptTokens, d.CompletionTokens)
		}
	case TypeInfo:
		var d InfoData
		if json.Unmarshal(evt.Data, &d) == nil {
			return d.Message
		}
	}
	return ""
}
