package logger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkBody_PairsActionAndDocument(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	body, err := BulkBody("runs", []Record{
		{Kind: "llm.call", RunID: "r1", Timestamp: at, Data: map[string]int{"tokens": 3}},
		{Kind: "phase.completed", Data: "x"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(body.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_index":"runs"}}`, lines[0])
	assert.JSONEq(t, `{"kind":"llm.call","run_id":"r1","@timestamp":"2026-10-18T09:00:00Z","data":{"tokens":3}}`, lines[1])
	assert.JSONEq(t, `{"index":{"_index":"runs"}}`, lines[2])

	var second Record
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &second))
	assert.Equal(t, "phase.completed", second.Kind)
	assert.Empty(t, second.RunID)
	assert.False(t, second.Timestamp.IsZero(), "missing timestamps are stamped")
}

func TestShip_NilClientIsNoop(t *testing.T) {
	assert.NoError(t, Ship(context.Background(), nil, "runs", Record{Kind: "x"}))
}

// stubES answers the product check and every bulk request with bulkReply.
func stubES(t *testing.T, bulkReply string, bodies *[]string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/_bulk" {
			data, _ := io.ReadAll(r.Body)
			*bodies = append(*bodies, string(data))
			io.WriteString(w, bulkReply)
			return
		}
		io.WriteString(w, `{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestShip_OneBulkRequestPerBatch(t *testing.T) {
	var bodies []string
	addr := stubES(t, `{"errors":false,"items":[{"index":{"status":201}},{"index":{"status":201}}]}`, &bodies)
	client, err := NewESClient([]string{addr}, "", "")
	require.NoError(t, err)

	err = Ship(context.Background(), client, "runs", Record{Kind: "a"}, Record{Kind: "b"})
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.Equal(t, 4, strings.Count(bodies[0], "\n"))
}

func TestShip_ReportsRejectedRecords(t *testing.T) {
	var bodies []string
	addr := stubES(t, `{"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400,"error":{"type":"mapper_parsing_exception"}}}]}`, &bodies)
	client, err := NewESClient([]string{addr}, "", "")
	require.NoError(t, err)

	err = Ship(context.Background(), client, "runs", Record{Kind: "a"}, Record{Kind: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1 (b) rejected with status 400")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}
