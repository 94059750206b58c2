// Package chunker packs an ordered stream of text fragments into as few
// fragments as possible without any of them exceeding a token limit.
package chunker

import (
	"errors"
	"fmt"

	"doc_summarizer/internal/tokens"
)

// NoteDelimiter separates extracted notes when they are merged, so the model
// still sees where one note ends and the next begins.
const NoteDelimiter = "\n\n---\n\n"

var (
	// ErrFragmentTooLarge is returned when a single fragment is over the limit
	// on its own. It has to be split before it reaches the chunker.
	ErrFragmentTooLarge = errors.New("fragment exceeds token limit")

	// ErrEmptyInput is returned when there is nothing to merge and no merge to resume.
	ErrEmptyInput = errors.New("no fragments to merge")
)

// FragmentTooLargeError carries the position and size of the offending fragment.
type FragmentTooLargeError struct {
	Index  int
	Tokens int
	Limit  int
	Model  string
}

func (e *FragmentTooLargeError) Error() string {
	return fmt.Sprintf("chunk too long: chunks[%d] is %d tokens long, limit is %d for %s",
		e.Index, e.Tokens, e.Limit, e.Model)
}

func (e *FragmentTooLargeError) Unwrap() error { return ErrFragmentTooLarge }

// State is the resumable progress of one merge. It is plain data so it can be
// stored in a checkpoint as-is; an inactive State means no merge is in flight.
type State struct {
	Active    bool     `json:"active"`
	Input     []string `json:"input,omitempty"`
	Delimiter string   `json:"delimiter,omitempty"`
	Merged    []string `json:"merged,omitempty"`
	Next      string   `json:"next,omitempty"`
	Cursor    int      `json:"cursor"`
}

// Reset returns the state to its initial form.
func (s *State) Reset() { *s = State{} }

// Merger greedily packs fragments under Limit tokens as measured by Counter.
type Merger struct {
	Counter tokens.Counter
	Limit   int
	Model   string
}

// Merge packs fragments left to right, joining neighbours with delimiter while
// the result stays within the limit. Order is preserved and every returned
// fragment is at most Limit tokens.
//
// If st is active the merge it describes is resumed from its cursor and the
// fragments and delimiter arguments are ignored. On success st is reset; on
// failure st keeps the cursor of the fragment that could not be packed.
func (m *Merger) Merge(st *State, fragments []string, delimiter string) ([]string, error) {
	if !st.Active {
		if len(fragments) == 0 {
			return nil, ErrEmptyInput
		}
		*st = State{
			Active:    true,
			Input:     append([]string(nil), fragments...),
			Delimiter: delimiter,
		}
	}

	for ; st.Cursor < len(st.Input); st.Cursor++ {
		fragment := st.Input[st.Cursor]
		if n := m.Counter.Count(fragment); n > m.Limit {
			return nil, &FragmentTooLargeError{Index: st.Cursor, Tokens: n, Limit: m.Limit, Model: m.Model}
		}
		current := st.Next
		next := fragment
		if current != "" {
			next = current + st.Delimiter + fragment
		}
		if m.Counter.Count(next) > m.Limit {
			// current is full
			st.Merged = append(st.Merged, current)
			next = fragment
		}
		st.Next = next
	}

	merged := append(st.Merged, st.Next)
	st.Reset()
	return merged, nil
}

// Merge is a one-shot helper for callers that do not need resumption.
func Merge(counter tokens.Counter, limit int, fragments []string, delimiter string) ([]string, error) {
	m := &Merger{Counter: counter, Limit: limit}
	return m.Merge(&State{}, fragments, delimiter)
}
