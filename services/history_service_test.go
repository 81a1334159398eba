package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/models"
)

func TestHistoryStore_UnknownSessionIsEmpty(t *testing.T) {
	h := NewHistoryStore(NewMemoryStore(), "chat:", nil)

	turns, err := h.Get(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
}

func TestHistoryStore_AppendThenGet(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(NewMemoryStore(), "chat:", nil)

	for i := 0; i < 3; i++ {
		turn := models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("msg %d", i)}
		require.NoError(t, h.Append(ctx, "s1", turn))

		turns, err := h.Get(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, turns, i+1)
		assert.Equal(t, turn.Content, turns[len(turns)-1].Content)
	}
}

func TestHistoryStore_Window(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(NewMemoryStore(), "chat:", nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: fmt.Sprint(i)}))
	}

	tests := []struct {
		window int
		want   []string
	}{
		{0, []string{"0", "1", "2", "3", "4"}},
		{1, []string{"4"}},
		{3, []string{"2", "3", "4"}},
		{5, []string{"0", "1", "2", "3", "4"}},
		{25, []string{"0", "1", "2", "3", "4"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("window=%d", tt.window), func(t *testing.T) {
			turns, err := h.Get(ctx, "s1", tt.window)
			require.NoError(t, err)

			var got []string
			for _, turn := range turns {
				got = append(got, turn.Content)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHistoryStore_PersistedShape(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	clock := &fixedClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	h := NewHistoryStore(kv, "chat:", clock)

	require.NoError(t, h.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "hi", HTML: "<p>hi</p>"}))

	raw, found, err := kv.Get(ctx, "chat:s1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{"role":"user","content":"hi","html":"<p>hi</p>","timestamp":"2024-01-02T03:04:05Z"}]`, raw)
}

func TestHistoryStore_TimestampsNeverDecrease(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	h := NewHistoryStore(NewMemoryStore(), "chat:", clock)

	require.NoError(t, h.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "a"}))
	clock.set(clock.Now().Add(-time.Hour))
	require.NoError(t, h.Append(ctx, "s1", models.Turn{Role: models.RoleBot, Content: "b"}))

	turns, err := h.Get(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.False(t, turns[1].Timestamp.Before(turns[0].Timestamp))
}

func TestHistoryStore_ConcurrentAppendsInProcess(t *testing.T) {
	ctx := context.Background()
	h := NewHistoryStore(NewMemoryStore(), "chat:", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.Append(ctx, "shared", models.Turn{Role: models.RoleUser, Content: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	turns, err := h.Get(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 50)
	assert.Empty(t, h.locks)
}

func TestHistoryStore_StoreUnavailable(t *testing.T) {
	ctx := context.Background()

	h := NewHistoryStore(&failingKV{MemoryStore: NewMemoryStore(), failGet: true}, "chat:", nil)
	_, err := h.Get(ctx, "s1", 0)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	h = NewHistoryStore(&failingKV{MemoryStore: NewMemoryStore(), failSet: true}, "chat:", nil)
	err = h.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestHistoryStore_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	h := NewHistoryStore(kv, "tenant-a:", nil)

	require.NoError(t, h.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "x"}))

	_, found, _ := kv.Get(ctx, "s1")
	assert.False(t, found)
	_, found, _ = kv.Get(ctx, "tenant-a:s1")
	assert.True(t, found)
}
