package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

// Record is the envelope every shipped document is indexed in. Kind carries
// the log type or event type so one index can hold several shapes.
type Record struct {
	Kind      string    `json:"kind"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"@timestamp"`
	Data      any       `json:"data"`
}

// Ship indexes records into index with a single bulk request.
// A nil client or an empty batch is a no-op.
func Ship(ctx context.Context, client *elasticsearch.Client, index string, records ...Record) error {
	if client == nil || len(records) == 0 {
		return nil
	}

	body, err := BulkBody(index, records)
	if err != nil {
		return err
	}

	res, err := esapi.BulkRequest{Body: body}.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("ship %d records to %s failed, err=%w", len(records), index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ship to %s failed: %s", index, res.String())
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []struct {
			Index struct {
				Status int             `json:"status"`
				Error  json.RawMessage `json:"error,omitempty"`
			} `json:"index"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		Warnf("[Ship] decode bulk response failed: %v", err)
		return nil
	}
	if !bulk.Errors {
		return nil
	}

	var errs []error
	for i, item := range bulk.Items {
		if len(item.Index.Error) > 0 {
			errs = append(errs, fmt.Errorf("record %d (%s) rejected with status %d: %s",
				i, records[i].Kind, item.Index.Status, item.Index.Error))
		}
	}
	return errors.Join(errs...)
}

// BulkBody renders records as the newline delimited action/document pairs
// of the bulk API. Records without a timestamp are stamped now.
func BulkBody(index string, records []Record) (*bytes.Buffer, error) {
	action, err := json.Marshal(map[string]any{"index": map[string]string{"_index": index}})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, r := range records {
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		doc, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal %s record failed, err=%w", r.Kind, err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}
	return &buf, nil
}

// NewESClient builds a client for addresses, or returns nil when none are given.
func NewESClient(addresses []string, username, password string) (*elasticsearch.Client, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client failed: %w", err)
	}
	return client, nil
}
