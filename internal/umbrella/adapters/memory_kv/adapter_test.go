package memorykv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathantilsley/vongform/internal/umbrella/ports"
)

var _ ports.BatchStateStore = (*Adapter)(nil)

func TestKeys_FiltersByPrefixSorted(t *testing.T) {
	a := New(map[string]string{
		"umbrella/sessions": "1.0.0",
		"umbrella/auth":     "1.2.3",
		"other/auth":        "9.9.9",
	})

	keys, err := a.Keys(context.Background(), "umbrella/")
	require.NoError(t, err)
	assert.Equal(t, []string{"umbrella/auth", "umbrella/sessions"}, keys)
}

func TestGetPutDelete(t *testing.T) {
	ctx := context.Background()
	a := New(nil)

	_, ok, err := a.Get(ctx, "umbrella/auth")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Put(ctx, "umbrella/auth", []byte("1.0.0")))
	v, ok, err := a.Get(ctx, "umbrella/auth")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", string(v))

	require.NoError(t, a.Delete(ctx, "umbrella/auth"))
	require.NoError(t, a.Delete(ctx, "umbrella/auth"), "deleting an absent key is not an error")
	assert.Empty(t, a.Snapshot())
	assert.Equal(t, 3, a.Writes())
}

func TestApplyBatch(t *testing.T) {
	a := New(map[string]string{"umbrella/old": "0.1.0"})

	err := a.ApplyBatch(context.Background(),
		[]ports.KeyValue{{Key: "umbrella/new", Value: []byte("1.0.0")}},
		[]string{"umbrella/old"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"umbrella/new": "1.0.0"}, a.Snapshot())
}

func TestFailOn(t *testing.T) {
	a := New(map[string]string{"umbrella/auth": "1.0.0"})
	boom := errors.New("connection refused")

	a.FailOn(OpBatch, boom)
	err := a.ApplyBatch(context.Background(), []ports.KeyValue{{Key: "umbrella/x", Value: []byte("1")}}, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]string{"umbrella/auth": "1.0.0"}, a.Snapshot())

	a.FailOn(OpBatch, nil)
	require.NoError(t, a.ApplyBatch(context.Background(), nil, nil))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Keys(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
}
