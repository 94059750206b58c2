package events

import (
	"context"

	"doc_summarizer/pkg/logger"

	"github.com/elastic/go-elasticsearch/v7"
)

// DefaultIndex receives events when no index is configured.
const DefaultIndex = "doc_summarizer_events"

// maxBatch caps how many queued events go into one bulk request.
const maxBatch = 64

// ESConsumer reads events from an Emitter and writes them to Elasticsearch.
// It runs in a background goroutine and stops when the subscribed channel is closed.
type ESConsumer struct {
	es    *elasticsearch.Client
	index string
}

// NewESConsumer creates a consumer that forwards events to ES.
// Call Start() to begin consuming from an emitter.
func NewESConsumer(es *elasticsearch.Client, index string) *ESConsumer {
	if index == "" {
		index = DefaultIndex
	}
	return &ESConsumer{es: es, index: index}
}

// Start begins consuming events from the emitter in a background goroutine.
// Events already queued behind the first one are shipped in the same bulk
// request. The returned channel is closed once the emitter is closed and
// every buffered event has been written.
func (c *ESConsumer) Start(emitter Emitter) <-chan struct{} {
	ch := emitter.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			batch := drain(ch, []logger.Record{c.record(evt)}, c.record)
			if err := logger.Ship(context.Background(), c.es, c.index, batch...); err != nil {
				logger.Warnf("[ESConsumer] failed to write %d events: %v", len(batch), err)
			}
		}
	}()
	return done
}

func (c *ESConsumer) record(evt Event) logger.Record {
	return logger.Record{Kind: evt.Type, RunID: evt.SessionID, Timestamp: evt.Timestamp, Data: evt}
}

// drain appends whatever is already waiting on ch to batch, without
// blocking, until maxBatch records are collected.
func drain(ch <-chan Event, batch []logger.Record, conv func(Event) logger.Record) []logger.Record {
	for len(batch) < maxBatch {
		select {
		case evt, ok := <-ch:
			if !ok {
				return batch
			}
			batch = append(batch, conv(evt))
		default:
			return batch
		}
	}
	return batch
}
