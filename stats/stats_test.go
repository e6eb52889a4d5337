package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Summary(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Type: EventTypeQueued, File: "a"}
	events <- Event{Type: EventTypeQueued, File: "b"}
	events <- Event{Type: EventTypeSkipped, File: "c"}
	events <- Event{Type: EventTypeCurated, File: "a", Counts: Counts{Records: 7, ParseErrors: 1, Threads: 4, Exported: 3}}
	events <- Event{Type: EventTypeWritten, File: "a"}
	events <- Event{Type: EventTypeError, File: "b", Err: errors.New("gzip header")}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)
	s := c.Snapshot()

	assert.Equal(t, 2, s.Queued)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Curated)
	assert.Equal(t, 1, s.Written)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 7, s.Records)
	assert.Equal(t, 3, s.Exported)
	require.Error(t, s.LastError)
	assert.Contains(t, s.LogAttrs(), "lastError")
}

func TestTop(t *testing.T) {
	m := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []Pair{{"c", 5}, {"a", 2}, {"b", 2}}, Top(m, 3))
	assert.Len(t, Top(m, 10), 4)
	assert.Empty(t, Top(nil, 3))
}

func TestPrettyPrintTop(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrintTop(&buf, map[string]int{"alice": 3, "bob": 1}, 5)
	assert.Equal(t, "1. alice (3)\n2. bob (1)\n", buf.String())
}
