package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_summarizer/internal/checkpoint"
	"doc_summarizer/internal/chunker"
	"doc_summarizer/internal/events"
	"doc_summarizer/internal/llm"
	"doc_summarizer/internal/llm/llmtest"
	"doc_summarizer/internal/tokens"
)

func words(n int, word string) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

// fragment prefixes a space so raw fragments joined without a delimiter keep
// their word boundaries.
func fragment(n int, word string) string {
	return " " + words(n, word)
}

func kind(in []*schema.Message) string {
	system := llmtest.SystemText(in)
	switch {
	case strings.HasPrefix(system, "Take notes"):
		return "extract"
	case strings.HasPrefix(system, "Compress the notes"):
		return "compress"
	case strings.HasPrefix(system, "Write a markdown"):
		return "write"
	}
	return "unknown"
}

func firstWord(in []*schema.Message) string {
	f := strings.Fields(llmtest.UserText(in))
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// deterministic answers extraction with "notes <first word>" and writes the
// final text from the notes it gets.
func deterministic(in []*schema.Message) llmtest.Reply {
	switch kind(in) {
	case "extract":
		return llmtest.Reply{Content: "notes " + firstWord(in)}
	case "compress":
		return llmtest.Reply{Content: "short " + firstWord(in)}
	default:
		notes := strings.TrimSuffix(llmtest.UserText(in), llm.FinalTextCue)
		return llmtest.Reply{Content: "# Final\n\n" + notes}
	}
}

type harness struct {
	fake  *llmtest.Model
	store checkpoint.Store
	cfg   *Config
}

func newHarness(t *testing.T, fake *llmtest.Model, limit int) *harness {
	t.Helper()
	client, err := llm.New(context.Background(), &llm.Config{Model: fake, ModelName: "gpt-3.5-turbo"})
	require.NoError(t, err)
	store := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "summarizer.json"))
	return &harness{
		fake:  fake,
		store: store,
		cfg: &Config{
			Completer:  client,
			Counter:    tokens.Whitespace,
			TokenLimit: limit,
			Store:      store,
			Options:    Options{Topic: "Physics"},
		},
	}
}

func (h *harness) summarizer(t *testing.T) *Summarizer {
	t.Helper()
	s, err := New(h.cfg)
	require.NoError(t, err)
	return s
}

func (h *harness) snapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := ReadSnapshot(context.Background(), h.store)
	require.NoError(t, err)
	return snap
}

func callsOf(fake *llmtest.Model, k string) int {
	n := 0
	for _, c := range fake.Calls() {
		if kind(c) == k {
			n++
		}
	}
	return n
}

func TestConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrConfigNil)
	assert.ErrorIs(t, (&Config{}).Validate(), ErrCompleterRequired)

	h := newHarness(t, &llmtest.Model{}, 100)
	cfg := *h.cfg
	cfg.Counter = nil
	assert.ErrorIs(t, cfg.Validate(), ErrCounterRequired)
	cfg = *h.cfg
	cfg.TokenLimit = 0
	assert.ErrorIs(t, cfg.Validate(), ErrTokenLimitRequired)
}

func TestNewAppliesDefaults(t *testing.T) {
	h := newHarness(t, &llmtest.Model{}, 100)
	s := h.summarizer(t)

	o := s.Options()
	assert.Equal(t, "Physics", o.Topic)
	assert.Equal(t, "detailed textbook", o.Genre)
	assert.Equal(t, "English", o.Language)
	assert.Equal(t, 1, o.Choices)
	assert.NotEmpty(t, s.RunID())
	assert.Equal(t, "gpt-3.5-turbo", s.Snapshot().Model)
}

func TestSummarize_ShortInputNeedsNoModel(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 2000)
	s := h.summarizer(t)

	input := words(50, "short")
	text, err := s.Summarize(context.Background(), []string{input})
	require.NoError(t, err)
	assert.Equal(t, input, text)
	assert.Equal(t, 0, fake.CallCount())

	snap := h.snapshot(t)
	assert.False(t, snap.InFlight())
	assert.Empty(t, snap.LastNotes)
}

func TestSummarize_ThreeFragmentsTwoExtractions(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 100)
	s := h.summarizer(t)

	text, err := s.Summarize(context.Background(), []string{
		fragment(40, "alpha"), fragment(40, "beta"), fragment(40, "gamma"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, callsOf(fake, "extract"))
	assert.Equal(t, 0, callsOf(fake, "compress"))
	assert.Equal(t, 1, callsOf(fake, "write"))
	assert.Equal(t, "# Final\n\nnotes alpha"+chunker.NoteDelimiter+"notes gamma", text)

	snap := h.snapshot(t)
	assert.False(t, snap.InFlight())
	assert.Equal(t, "notes alpha"+chunker.NoteDelimiter+"notes gamma", snap.LastNotes)
	assert.Equal(t, 45, snap.Usage.TotalTokens)
}

func TestSummarize_CompressesUntilOneNote(t *testing.T) {
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		switch kind(in) {
		case "extract":
			return llmtest.Reply{Content: words(12, "n")}
		case "compress":
			return llmtest.Reply{Content: words(8, "c")}
		}
		return llmtest.Reply{Content: "final"}
	}}
	h := newHarness(t, fake, 30)
	emitter := events.NewChannelEmitter(64)
	sub := emitter.Subscribe()
	h.cfg.Emitter = emitter
	s := h.summarizer(t)

	fragments := make([]string, 5)
	for i := range fragments {
		fragments[i] = fragment(20, "w")
	}
	text, err := s.Summarize(context.Background(), fragments)
	require.NoError(t, err)
	assert.Equal(t, "final", text)

	// 5 notes of 12 words merge into 3, three condensed notes of 8 merge into 1
	assert.Equal(t, 5, callsOf(fake, "extract"))
	assert.Equal(t, 3, callsOf(fake, "compress"))
	assert.Equal(t, 1, callsOf(fake, "write"))

	emitter.Close()
	var rounds []events.Event
	var completed bool
	for evt := range sub {
		switch evt.Type {
		case events.TypeRoundCompacted:
			rounds = append(rounds, evt)
		case events.TypeRunCompleted:
			completed = true
		}
		assert.Equal(t, s.RunID(), evt.SessionID)
	}
	assert.Len(t, rounds, 1)
	assert.True(t, completed)
}

func TestCompress_SingleNotePassesThrough(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 100)
	s := h.summarizer(t)

	note, err := s.compress(context.Background(), []string{"only note"})
	require.NoError(t, err)
	assert.Equal(t, "only note", note)
	assert.Equal(t, 0, fake.CallCount())
	assert.False(t, s.Snapshot().Compress.Active)
}

func TestSummarize_NoProgressStops(t *testing.T) {
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		switch kind(in) {
		case "extract":
			return llmtest.Reply{Content: words(20, "n")}
		case "compress":
			return llmtest.Reply{Content: llmtest.UserText(in)}
		}
		return llmtest.Reply{Content: "final"}
	}}
	h := newHarness(t, fake, 30)
	s := h.summarizer(t)

	_, err := s.Summarize(context.Background(), []string{fragment(20, "a"), fragment(20, "b"), fragment(20, "c")})
	require.ErrorIs(t, err, ErrNoProgress)
	assert.Equal(t, 0, callsOf(fake, "write"))

	snap := h.snapshot(t)
	assert.True(t, snap.Compress.Active)
	assert.True(t, snap.Run.Active)
	assert.Equal(t, []string{opSummarize, opCompress}, snap.Stack)
}

func TestSummarize_TooManyRounds(t *testing.T) {
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		switch kind(in) {
		case "extract":
			return llmtest.Reply{Content: words(20, "n")}
		case "compress":
			return llmtest.Reply{Content: words(14, "c")}
		}
		return llmtest.Reply{Content: "final"}
	}}
	h := newHarness(t, fake, 30)
	h.cfg.MaxCompressRounds = 1
	s := h.summarizer(t)

	fragments := make([]string, 5)
	for i := range fragments {
		fragments[i] = fragment(20, "w")
	}
	_, err := s.Summarize(context.Background(), fragments)
	require.ErrorIs(t, err, ErrTooManyRounds)
	assert.Equal(t, 1, h.snapshot(t).Compress.Round)
}

func TestSummarize_EmptyInput(t *testing.T) {
	h := newHarness(t, &llmtest.Model{}, 100)
	s := h.summarizer(t)

	_, err := s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestSummarize_FragmentTooLargeIsCheckpointed(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 50)
	s := h.summarizer(t)

	_, err := s.Summarize(context.Background(), []string{
		fragment(10, "ok"), fragment(60, "huge"), fragment(10, "tail"),
	})
	require.ErrorIs(t, err, chunker.ErrFragmentTooLarge)
	var tooLarge *chunker.FragmentTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 1, tooLarge.Index)
	assert.Equal(t, 0, fake.CallCount())

	snap := h.snapshot(t)
	assert.True(t, snap.Merge.Active)
	assert.Equal(t, 1, snap.Merge.Cursor)
	assert.Equal(t, []string{opSummarize, opMerge}, snap.Stack)

	// split the offending fragment in the checkpoint and resume
	snap.Merge.Input = []string{fragment(10, "ok"), fragment(30, "huge"), fragment(30, "huge"), fragment(10, "tail")}
	resumed, err := Restore(h.cfg, snap)
	require.NoError(t, err)
	text, err := resumed.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "# Final"))
	assert.Equal(t, snap.RunID, resumed.RunID())
}

func TestSummarize_ResumeMatchesUninterrupted(t *testing.T) {
	input := []string{fragment(60, "alpha"), fragment(60, "beta"), fragment(60, "gamma")}

	clean := newHarness(t, &llmtest.Model{Respond: deterministic}, 100)
	want, err := clean.summarizer(t).Summarize(context.Background(), input)
	require.NoError(t, err)

	var calls atomic.Int32
	flaky := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		if calls.Add(1) == 2 {
			return llmtest.Reply{Err: errors.New("rate limited")}
		}
		return deterministic(in)
	}}
	h := newHarness(t, flaky, 100)
	_, err = h.summarizer(t).Summarize(context.Background(), input)
	require.ErrorIs(t, err, llm.ErrModelCallFailed)

	snap := h.snapshot(t)
	assert.True(t, snap.Extract.Active)
	assert.Equal(t, 1, snap.Extract.Cursor)
	assert.Equal(t, "notes alpha", snap.Extract.Fragments[0])
	assert.Equal(t, []string{opSummarize, opExtract}, snap.Stack)

	steady := &llmtest.Model{Respond: deterministic}
	client, err := llm.New(context.Background(), &llm.Config{Model: steady, ModelName: "gpt-3.5-turbo"})
	require.NoError(t, err)
	h.cfg.Completer = client

	resumed, err := Load(context.Background(), h.cfg)
	require.NoError(t, err)
	got, err := resumed.Summarize(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 2, callsOf(steady, "extract"), "the finished chunk is not extracted again")
	assert.Equal(t, 1, callsOf(steady, "write"))
	assert.False(t, h.snapshot(t).InFlight())
	assert.Empty(t, h.snapshot(t).Stack)
}

func TestSummarize_CancelledRunIsStillCheckpointed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		if calls.Add(1) == 2 {
			cancel()
			return llmtest.Reply{Err: context.Canceled}
		}
		return deterministic(in)
	}}
	h := newHarness(t, fake, 100)
	emitter := events.NewChannelEmitter(64)
	sub := emitter.Subscribe()
	h.cfg.Emitter = emitter

	_, err := h.summarizer(t).Summarize(ctx, []string{
		fragment(40, "alpha"), fragment(40, "beta"), fragment(40, "gamma"),
	})
	require.ErrorIs(t, err, llm.ErrModelCallFailed)

	snap := h.snapshot(t)
	assert.Equal(t, []string{opSummarize, opExtract}, snap.Stack)
	assert.True(t, snap.Extract.Active)
	assert.Equal(t, 1, snap.Extract.Cursor)

	emitter.Close()
	var failed []events.ErrorData
	for evt := range sub {
		if evt.Type != events.TypePhaseFailed {
			continue
		}
		var d events.ErrorData
		require.NoError(t, json.Unmarshal(evt.Data, &d))
		failed = append(failed, d)
	}
	require.Len(t, failed, 2)
	assert.Equal(t, opExtract, failed[0].Phase)
	assert.Equal(t, 1, failed[0].Cursor)
	assert.Equal(t, opSummarize, failed[1].Phase)
}

func TestSummarize_EmitsInfoAndRunDuration(t *testing.T) {
	h := newHarness(t, &llmtest.Model{Respond: deterministic}, 2000)
	emitter := events.NewChannelEmitter(64)
	sub := emitter.Subscribe()
	h.cfg.Emitter = emitter

	_, err := h.summarizer(t).Summarize(context.Background(), []string{words(10, "short")})
	require.NoError(t, err)

	emitter.Close()
	var infos []string
	var done *events.RunCompletedData
	for evt := range sub {
		switch evt.Type {
		case events.TypeInfo:
			var d events.InfoData
			require.NoError(t, json.Unmarshal(evt.Data, &d))
			infos = append(infos, d.Message)
		case events.TypeRunCompleted:
			done = &events.RunCompletedData{}
			require.NoError(t, json.Unmarshal(evt.Data, done))
		}
	}
	assert.Equal(t, []string{"input fits in one chunk, no model calls needed"}, infos)
	require.NotNil(t, done)
	assert.GreaterOrEqual(t, done.DurationMs, int64(0))
	assert.Equal(t, len(words(10, "short")), done.ContentLen)
}

func TestSummarize_ReusableAfterCompletion(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 100)
	s := h.summarizer(t)

	first, err := s.Summarize(context.Background(), []string{fragment(60, "one"), fragment(60, "two")})
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), []string{fragment(60, "three"), fragment(60, "four")})
	require.NoError(t, err)

	assert.Contains(t, first, "notes one")
	assert.Contains(t, second, "notes three")
	assert.NotContains(t, second, "notes one")
}

func TestRewrite(t *testing.T) {
	fake := &llmtest.Model{Respond: deterministic}
	h := newHarness(t, fake, 100)
	s := h.summarizer(t)

	_, err := s.Rewrite(context.Background())
	require.ErrorIs(t, err, ErrNothingToRewrite)

	_, err = s.Summarize(context.Background(), []string{fragment(60, "one"), fragment(60, "two")})
	require.NoError(t, err)
	before := fake.CallCount()

	h.cfg.Options = Options{Genre: "essay"}
	loaded, err := Load(context.Background(), h.cfg)
	require.NoError(t, err)
	assert.Equal(t, "essay", loaded.Options().Genre)
	assert.Equal(t, "Physics", loaded.Options().Topic)

	text, err := loaded.Rewrite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# Final\n\nnotes one"+chunker.NoteDelimiter+"notes two", text)
	assert.Equal(t, before+1, fake.CallCount())

	last := fake.Calls()[fake.CallCount()-1]
	assert.Equal(t, "write", kind(last))
	assert.Contains(t, llmtest.SystemText(last), "essay")
}

func TestBestChoice(t *testing.T) {
	choices := []llm.Choice{
		{Text: "ab", FinishReason: llm.FinishStop},
		{Text: "abcdef", FinishReason: llm.FinishLength},
		{Text: "abc", FinishReason: llm.FinishStop},
	}
	assert.Equal(t, 2, BestChoice(choices))

	truncated := []llm.Choice{
		{Text: "abc", FinishReason: llm.FinishLength},
		{Text: "abcdef", FinishReason: llm.FinishLength},
	}
	assert.Equal(t, 0, BestChoice(truncated))

	ties := []llm.Choice{
		{Text: "xyz", FinishReason: llm.FinishStop},
		{Text: "abc", FinishReason: llm.FinishStop},
	}
	assert.Equal(t, 0, BestChoice(ties))

	// characters count, not bytes: three CJK runes are 9 bytes
	multibyte := []llm.Choice{
		{Text: "日本語", FinishReason: llm.FinishStop},
		{Text: "abcdefg", FinishReason: llm.FinishStop},
	}
	assert.Equal(t, 1, BestChoice(multibyte))
	assert.Equal(t, 0, BestChoice([]llm.Choice{
		{Text: "日本語の要約です", FinishReason: llm.FinishStop},
		{Text: "abcdefg", FinishReason: llm.FinishStop},
	}))
}

func TestWrite_PicksLongestNaturalStop(t *testing.T) {
	var i atomic.Int32
	replies := []llmtest.Reply{
		{Content: "ab", FinishReason: "stop"},
		{Content: "abcdef", FinishReason: "length"},
		{Content: "abc", FinishReason: "end_turn"},
	}
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		return replies[int(i.Add(1)-1)%len(replies)]
	}}
	h := newHarness(t, fake, 100)
	h.cfg.Options.Choices = 3
	s := h.summarizer(t)

	text, err := s.write(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
	assert.Equal(t, 3, fake.CallCount())
}

func TestStripRules(t *testing.T) {
	cases := map[string]string{
		"a\n\n---\nb":       "a\n\n\nb",
		"a\n\n * * * \nb":   "a\n\n\nb",
		"a\n\n_____\nb":     "a\n\n\nb",
		"a\n\n--\nb":        "a\n\n--\nb",
		"a\n\n-*-\nb":       "a\n\n-*-\nb",
		"a\n---\nb":         "a\n---\nb",
		"no rules at all":   "no rules at all",
		"x\n\n- - -\n\ny\n": "x\n\n\n\ny\n",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripRules(in), "%q", in)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not json"), "summarizer.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarizer.json")

	_, err = DecodeSnapshot([]byte(`{"version": 99}`), "x")
	assert.Error(t, err)

	_, err = ReadSnapshot(context.Background(), checkpoint.NewFileStore(filepath.Join(t.TempDir(), "none.json")))
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestTranslate(t *testing.T) {
	fake := &llmtest.Model{Respond: func(in []*schema.Message) llmtest.Reply {
		return llmtest.Reply{Content: strings.ToUpper(llmtest.UserText(in))}
	}}
	client, err := llm.New(context.Background(), &llm.Config{Model: fake})
	require.NoError(t, err)

	tr := &Translator{Completer: client, Counter: tokens.Whitespace, Limit: 10}
	out, err := tr.Translate(context.Background(), "hallo welt", "German", "English")
	require.NoError(t, err)
	assert.Equal(t, "HALLO WELT", out)
	assert.Equal(t, 1, fake.CallCount())

	long := words(8, "a") + "\n\n" + words(8, "b") + "\n\n" + words(2, "c")
	out, err = tr.Translate(context.Background(), long, "German", "English")
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(words(8, "a"))+"\n\n"+strings.ToUpper(words(8, "b")+"\n\n"+words(2, "c")), out)
	assert.Equal(t, 3, fake.CallCount())

	_, err = tr.Translate(context.Background(), "  ", "German", "English")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
