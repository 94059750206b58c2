package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventMarshalsData(t *testing.T) {
	evt := NewEvent(TypeChunkExtracted, "run-1", ChunkExtractedData{Index: 1, Total: 3, NoteTokens: 42})
	assert.Equal(t, "run-1", evt.SessionID)

	var d ChunkExtractedData
	require.NoError(t, json.Unmarshal(evt.Data, &d))
	assert.Equal(t, 42, d.NoteTokens)

	bad := NewEvent(TypeInfo, "", func() {})
	assert.Equal(t, json.RawMessage("null"), bad.Data)
}

func TestChannelEmitterFanOut(t *testing.T) {
	e := NewChannelEmitter(4)
	a := e.Subscribe()
	b := e.Subscribe()

	e.Emit(NewEvent(TypeInfo, "", InfoData{Message: "hi"}))
	e.Close()
	e.Emit(NewEvent(TypeInfo, "", InfoData{Message: "dropped"}))

	for _, ch := range []<-chan Event{a, b} {
		var got []Event
		for evt := range ch {
			got = append(got, evt)
		}
		require.Len(t, got, 1)
		assert.Equal(t, "hi", Describe(got[0]))
	}

	late := e.Subscribe()
	_, open := <-late
	assert.False(t, open)
}

func TestChannelEmitterDropsWhenFull(t *testing.T) {
	e := NewChannelEmitter(1)
	ch := e.Subscribe()
	e.Emit(NewEvent(TypeInfo, "", InfoData{Message: "1"}))
	e.Emit(NewEvent(TypeInfo, "", InfoData{Message: "2"}))
	e.Close()

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		evt  Event
		want string
	}{
		{NewEvent(TypePhaseStarted, "", PhaseData{Phase: "extract"}), "[extract] started"},
		{NewEvent(TypePhaseCompleted, "", PhaseData{Phase: "write", DurationMs: 12}), "[write] completed in 12ms"},
		{NewEvent(TypePhaseFailed, "", ErrorData{Phase: "merge", Message: "chunk too long"}), "[merge] failed at 0: chunk too long"},
		{NewEvent(TypePhaseFailed, "", ErrorData{Phase: "extract", Message: "rate limited", Cursor: 2}), "[extract] failed at 2: rate limited"},
		{NewEvent(TypeRunCompleted, "", RunCompletedData{Model: "gpt-4", DurationMs: 1500, ContentLen: 42, PromptTokens: 30, CompletionTokens: 15}),
			"[run] done with gpt-4 in 1500ms: 42 chars, 30 prompt + 15 completion tokens"},
		{NewEvent(TypeInfo, "", InfoData{Message: "resuming run r1"}), "resuming run r1"},
		{NewEvent(TypeChunkExtracted, "", ChunkExtractedData{Index: 0, Total: 2, NoteTokens: 7}), "[extract] chunk 1/2 -> 7 tokens of notes"},
		{NewEvent(TypeRoundCompacted, "", RoundCompactedData{Round: 1, NotesBefore: 3, NotesAfter: 1, TokensAfter: 90}), "[compress] round 1: 3 -> 1 notes (90 tokens)"},
		{NewEvent("unknown", "", nil), ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Describe(tc.evt))
	}
}

func TestConsumersStopOnClose(t *testing.T) {
	e := NewChannelEmitter(8)
	printed := StartPrinter(e)
	shipped := NewESConsumer(nil, "").Start(e)

	e.Emit(NewEvent(TypeInfo, "", InfoData{Message: "x"}))
	e.Close()

	for _, done := range []<-chan struct{}{printed, shipped} {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestDrainBatchesQueuedEvents(t *testing.T) {
	ch := make(chan Event, maxBatch+10)
	for i := 0; i < maxBatch+10; i++ {
		ch <- NewEvent(TypeInfo, "r1", InfoData{Message: "x"})
	}
	c := NewESConsumer(nil, "")

	batch := drain(ch, nil, c.record)
	assert.Len(t, batch, maxBatch)
	assert.Equal(t, "r1", batch[0].RunID)
	assert.Equal(t, TypeInfo, batch[0].Kind)

	rest := drain(ch, nil, c.record)
	assert.Len(t, rest, 10)
	assert.Empty(t, drain(ch, nil, c.record))
}
