package events

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}

	assert.NoError(t, p.Publish(context.Background(), Event{Resource: "users", Action: "create"}))
	assert.NoError(t, p.Close())
}

func TestEventWireShape(t *testing.T) {
	evt := Event{
		Resource:   "users",
		Action:     "delete",
		PK:         7,
		Data:       map[string]any{"pk": 7},
		OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "users", decoded["resource"])
	assert.Equal(t, "delete", decoded["action"])
	assert.Equal(t, float64(7), decoded["pk"])
	assert.Equal(t, "2026-08-01T12:00:00Z", decoded["occurred_at"])
}

func TestEventOmitsEmptyData(t *testing.T) {
	body, err := json.Marshal(Event{Resource: "users", Action: "create", PK: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"data"`)
}
