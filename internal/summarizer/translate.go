package summarizer

import (
	"context"
	"fmt"
	"strings"

	"doc_summarizer/internal/chunker"
	"doc_summarizer/internal/llm"
	"doc_summarizer/internal/prompts"
	"doc_summarizer/internal/tokens"
	"doc_summarizer/pkg/logger"
)

// Translator translates text between two languages. Text over the token
// limit is split at paragraph boundaries and translated piece by piece.
type Translator struct {
	Completer llm.Completer
	Counter   tokens.Counter
	Limit     int
	Sink      *logger.Sink
}

// Translate returns text translated from source to target language.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	if t.Completer == nil {
		return "", ErrCompleterRequired
	}

	pieces := []string{text}
	if t.Counter != nil && t.Limit > 0 && t.Counter.Count(text) > t.Limit {
		merger := &chunker.Merger{Counter: t.Counter, Limit: t.Limit, Model: t.Completer.ModelName()}
		var err error
		pieces, err = merger.Merge(&chunker.State{}, splitParagraphs(text), "\n\n")
		if err != nil {
			return "", err
		}
	}

	t.Sink.Force("Translating...")
	out := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		if len(pieces) > 1 {
			t.Sink.Logf("translate part %d/%d:", i+1, len(pieces))
		}
		resp, err := t.Completer.Complete(ctx, prompts.Translate, map[string]any{
			llm.VarText:           piece,
			llm.VarSourceLanguage: source,
			llm.VarTargetLanguage: target,
		}, 1)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: translate returned no choices", llm.ErrModelCallFailed)
		}
		out = append(out, resp.Choices[0].Text)
	}
	t.Sink.Force("Finished translating.")
	return strings.Join(out, "\n\n"), nil
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
