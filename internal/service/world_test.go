package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorldStore holds the singleton attribute map in memory
type fakeWorldStore struct {
	attrs map[string]json.RawMessage
}

func (f *fakeWorldStore) GetWorld(_ context.Context) (map[string]json.RawMessage, error) {
	if f.attrs == nil {
		return map[string]json.RawMessage{}, nil
	}
	return f.attrs, nil
}

func (f *fakeWorldStore) ReplaceWorld(_ context.Context, attrs map[string]json.RawMessage) error {
	f.attrs = attrs
	return nil
}

type fakeBroadcaster struct {
	broadcasts []map[string]json.RawMessage
}

func (f *fakeBroadcaster) BroadcastWorldUpdate(attrs map[string]json.RawMessage) {
	f.broadcasts = append(f.broadcasts, attrs)
}

func TestWorldService(t *testing.T) {
	ctx := context.Background()
	store := &fakeWorldStore{}
	svc := NewWorldService(store, testLogger())

	t.Run("empty before first write", func(t *testing.T) {
		attrs, err := svc.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, attrs)
		assert.NotNil(t, attrs)
	})

	t.Run("replace overwrites the whole document", func(t *testing.T) {
		first := map[string]json.RawMessage{
			"season": json.RawMessage(`3`),
			"event":  json.RawMessage(`"harvest"`),
		}
		require.NoError(t, svc.Replace(ctx, first))

		second := map[string]json.RawMessage{"season": json.RawMessage(`4`)}
		require.NoError(t, svc.Replace(ctx, second))

		attrs, err := svc.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, attrs, 1)
		assert.JSONEq(t, `4`, string(attrs["season"]))
	})
}

func TestWorldServiceBroadcast(t *testing.T) {
	ctx := context.Background()
	store := &fakeWorldStore{}
	hub := &fakeBroadcaster{}
	svc := NewWorldService(store, testLogger())
	svc.SetHub(hub)

	attrs := map[string]json.RawMessage{"season": json.RawMessage(`5`)}
	require.NoError(t, svc.Replace(ctx, attrs))

	require.Len(t, hub.broadcasts, 1)
	assert.JSONEq(t, `5`, string(hub.broadcasts[0]["season"]))
}
