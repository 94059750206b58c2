package main

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"doc_summarizer/internal/checkpoint"
	"doc_summarizer/internal/config"
	"doc_summarizer/internal/events"
	"doc_summarizer/internal/llm"
	"doc_summarizer/internal/summarizer"
	"doc_summarizer/internal/tokens"
	"doc_summarizer/pkg/logger"
)

// newChatModel and newCounter are swapped out in tests.
var (
	newChatModel func(ctx context.Context, cfg llm.ProviderConfig) (model.BaseChatModel, error) = llm.NewChatModel

	newCounter = func(modelName string) (counter tokens.Counter, fallback bool, err error) {
		tk, err := tokens.NewTiktoken(modelName)
		if err != nil {
			return nil, false, err
		}
		return tk, tk.Fallback(), nil
	}
)

// app holds everything a command needs besides the model.
type app struct {
	cfg     *config.Config
	sink    *logger.Sink
	metrics *logger.Metrics
	emitter *events.ChannelEmitter
	done    []<-chan struct{}
	store   checkpoint.Store
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then flags, then secrets from the environment.
func loadConfig(g *globalFlags, o *optionFlags) (*config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return nil, err
		}
	}

	setString(&cfg.Model, g.model)
	setString(&cfg.Checkpoint, g.checkpoint)
	setString(&cfg.CheckpointName, g.checkpointName)
	setString(&cfg.LogDir, g.logDir)
	cfg.Verbose = cfg.Verbose || g.verbose
	if g.rpm > 0 {
		cfg.RequestsPerMinute = g.rpm
	}
	if g.limit > 0 {
		cfg.TokenLimit = g.limit
	}
	if g.maxRounds > 0 {
		cfg.MaxCompressRounds = g.maxRounds
	}
	if len(g.esAddrs) > 0 {
		cfg.Elasticsearch.Addresses = g.esAddrs
	}
	if o != nil {
		if o.choices > 0 {
			cfg.Choices = o.choices
		}
		setString(&cfg.Genre, o.genre)
		setString(&cfg.Topic, o.topic)
		setString(&cfg.Language, o.language)
		setString(&cfg.Context, o.context)
	}
	cfg.FromEnv(nil)
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func newApp(ctx context.Context, cfg *config.Config, withStore bool) (*app, error) {
	sink, err := logger.NewSink(cfg.LogDir, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	es, err := logger.NewESClient(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		sink:    sink,
		metrics: logger.NewMetrics(es),
		emitter: events.NewChannelEmitter(256),
	}
	if es != nil {
		a.done = append(a.done, events.NewESConsumer(es, cfg.Elasticsearch.EventsIndex).Start(a.emitter))
	}
	if cfg.Verbose {
		a.done = append(a.done, events.StartPrinter(a.emitter))
	}

	if withStore {
		store, err := checkpoint.Open(ctx, cfg.GetCheckpoint(), cfg.CheckpointName)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

// completer builds the model client for modelName.
func (a *app) completer(ctx context.Context, modelName string) (*llm.Client, error) {
	chat, err := newChatModel(ctx, llm.ProviderConfig{
		Model:           modelName,
		OpenAIKey:       a.cfg.OpenAIKey,
		OpenAIBaseURL:   a.cfg.OpenAIBaseURL,
		AnthropicKey:    a.cfg.AnthropicKey,
		MaxOutputTokens: a.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	return llm.New(ctx, &llm.Config{
		Model:             chat,
		ModelName:         modelName,
		Sink:              a.sink,
		Metrics:           a.metrics,
		RequestsPerMinute: a.cfg.RequestsPerMinute,
	})
}

// counter returns the tokenizer for modelName, falling back to cl100k_base.
func (a *app) counter(modelName string) (tokens.Counter, error) {
	counter, fallback, err := newCounter(modelName)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer for %s: %w", modelName, err)
	}
	if fallback {
		a.sink.Logf("No tokenizer registered for %s, counting with cl100k_base.", modelName)
	}
	return counter, nil
}

// summarizerConfig wires the collaborators shared by fresh and resumed runs.
func (a *app) summarizerConfig(completer llm.Completer, counter tokens.Counter, limit int) *summarizer.Config {
	return &summarizer.Config{
		Completer:         completer,
		Counter:           counter,
		TokenLimit:        limit,
		Store:             a.store,
		Sink:              a.sink,
		Metrics:           a.metrics,
		Emitter:           a.emitter,
		MaxCompressRounds: a.cfg.MaxCompressRounds,
	}
}

// Close flushes event consumers and releases the checkpoint store.
func (a *app) Close() {
	a.emitter.Close()
	for _, done := range a.done {
		<-done
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close checkpoint store: %v", err)
		}
	}
}
