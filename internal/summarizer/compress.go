package summarizer

import (
	"context"
	"fmt"

	"doc_summarizer/internal/chunker"
	"doc_summarizer/internal/events"
	"doc_summarizer/pkg/logger"
)

// compress condenses notes and re-merges them until a single note is left.
// A round must shrink either the note count or the total token count.
func (s *Summarizer) compress(ctx context.Context, notes []string) (string, error) {
	var final string
	err := s.trace(ctx, opCompress, logger.PhaseCompress, func() error {
		st := &s.state.Compress
		if !st.Active {
			*st = CompressState{Active: true, Notes: append([]string(nil), notes...)}
		}

		for len(st.Notes) > 1 {
			if st.Round >= s.maxRounds {
				return fmt.Errorf("%w: %d rounds, %d notes left", ErrTooManyRounds, st.Round, len(st.Notes))
			}
			s.sink.Logf("Compressing %d chunks.", len(st.Notes))

			if !st.Extracted.Done {
				condensed, err := s.extract(ctx, st.Notes, true)
				if err != nil {
					return err
				}
				st.Extracted.Set(condensed)
			}
			merged, err := s.merge(ctx, st.Extracted.Value, chunker.NoteDelimiter)
			if err != nil {
				return err
			}

			before, after := s.totalTokens(st.Notes), s.totalTokens(merged)
			if len(merged) >= len(st.Notes) && after >= before {
				return fmt.Errorf("%w: round %d kept %d notes at %d tokens", ErrNoProgress, st.Round+1, len(merged), after)
			}

			s.emit(events.TypeRoundCompacted, events.RoundCompactedData{
				Round:       st.Round + 1,
				NotesBefore: len(st.Notes),
				NotesAfter:  len(merged),
				TokensAfter: after,
			})
			st.Notes = merged
			st.Round++
			st.Extracted = Slot[[]string]{}
		}

		final = st.Notes[0]
		*st = CompressState{}
		return nil
	})
	return final, err
}
