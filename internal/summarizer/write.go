package summarizer

import (
	"context"
	"unicode/utf8"

	"doc_summarizer/internal/llm"
	"doc_summarizer/internal/prompts"
	"doc_summarizer/pkg/logger"
)

// BestChoice returns the index of the longest choice that finished on its
// own, measured in characters. Truncated choices score zero; ties go to the
// lowest index, so if none stopped naturally the first choice wins.
func BestChoice(choices []llm.Choice) int {
	best, bestScore := 0, -1
	for i, c := range choices {
		score := 0
		if c.FinishReason == llm.FinishStop {
			score = utf8.RuneCountInString(c.Text)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func (s *Summarizer) write(ctx context.Context, notes string) (string, error) {
	var text string
	err := s.trace(ctx, opWrite, logger.PhaseWrite, func() error {
		st := &s.state.Write
		if !st.Active {
			*st = WriteState{Active: true, Notes: notes}
		}

		resp, err := s.complete(ctx, prompts.Write, st.Notes, s.state.Options.Choices)
		if err != nil {
			return err
		}
		best := BestChoice(resp.Choices)
		s.sink.Logf("Selected choice[%d] of %d.", best, len(resp.Choices))
		text = resp.Choices[best].Text

		*st = WriteState{}
		return nil
	})
	return text, err
}
