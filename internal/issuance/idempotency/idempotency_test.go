package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shikkha/pkg/platform/sentinel"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("first reservation wins", func(t *testing.T) {
		state, _, err := st.Reserve(ctx, "k-first", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, Reserved, state)

		state, _, err = st.Reserve(ctx, "k-first", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, InFlight, state)
	})

	t.Run("completed key returns stored result", func(t *testing.T) {
		_, _, err := st.Reserve(ctx, "k-done", time.Minute)
		require.NoError(t, err)
		require.NoError(t, st.Complete(ctx, "k-done", []byte(`{"id":"0x01"}`), time.Minute))

		state, result, err := st.Reserve(ctx, "k-done", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, Completed, state)
		assert.JSONEq(t, `{"id":"0x01"}`, string(result))
	})

	t.Run("release frees a pending key", func(t *testing.T) {
		_, _, err := st.Reserve(ctx, "k-release", time.Minute)
		require.NoError(t, err)
		require.NoError(t, st.Release(ctx, "k-release"))

		state, _, err := st.Reserve(ctx, "k-release", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, Reserved, state)
	})

	t.Run("release keeps a completed result", func(t *testing.T) {
		_, _, err := st.Reserve(ctx, "k-kept", time.Minute)
		require.NoError(t, err)
		require.NoError(t, st.Complete(ctx, "k-kept", []byte(`"r"`), time.Minute))
		require.NoError(t, st.Release(ctx, "k-kept"))

		state, _, err := st.Reserve(ctx, "k-kept", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, Completed, state)
	})

	t.Run("rejects empty key and non-positive ttl", func(t *testing.T) {
		_, _, err := st.Reserve(ctx, "", time.Minute)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
		_, _, err = st.Reserve(ctx, "k-ttl", 0)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})
}

func TestInMemory(t *testing.T) {
	exerciseStore(t, NewInMemory(nil))
}

func TestInMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewInMemory(func() time.Time { return now })

	_, _, err := st.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	state, _, err := st.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Reserved, state, "an expired reservation can be taken again")
}
