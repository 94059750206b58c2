package summarizer

import (
	"context"
	"fmt"
	"regexp"

	"doc_summarizer/internal/events"
	"doc_summarizer/internal/prompts"
	"doc_summarizer/pkg/logger"
)

// horizontalRule matches a markdown thematic break on its own line after a
// blank line: three or more of the same -, * or _ with optional spaces.
var horizontalRule = regexp.MustCompile(`\n\n *(?:-(?: *-){2,}|\*(?: *\*){2,}|_(?: *_){2,}) *\n`)

// StripRules replaces horizontal rules in model output with a blank line so
// they cannot be confused with the note delimiter.
func StripRules(text string) string {
	return horizontalRule.ReplaceAllString(text, "\n\n\n")
}

// extract turns every fragment into notes, one model call each. With compress
// set the notes are condensed further instead of extracted from source text.
func (s *Summarizer) extract(ctx context.Context, fragments []string, compress bool) ([]string, error) {
	var notes []string
	err := s.trace(ctx, opExtract, logger.PhaseExtract, func() error {
		st := &s.state.Extract
		if !st.Active {
			*st = ExtractState{
				Active:    true,
				Compress:  compress,
				Fragments: append([]string(nil), fragments...),
			}
		}

		template := prompts.Extract
		if st.Compress {
			template = prompts.Compress
		}

		total := len(st.Fragments)
		for st.Cursor < total {
			i := st.Cursor
			s.sink.Logf("%s chunk %d/%d:", template, i+1, total)
			resp, err := s.complete(ctx, template, st.Fragments[i], 1)
			if err != nil {
				return err
			}
			note := StripRules(resp.Choices[0].Text)
			st.Fragments[i] = note
			st.Cursor++

			s.emit(events.TypeChunkExtracted, events.ChunkExtractedData{
				Index:      i,
				Total:      total,
				NoteTokens: s.counter.Count(note),
			})
			if st.Cursor < total {
				if err := s.Save(context.WithoutCancel(ctx)); err != nil {
					return fmt.Errorf("checkpoint after chunk %d: %w", i, err)
				}
			}
		}

		notes = st.Fragments
		*st = ExtractState{}
		return nil
	})
	return notes, err
}
