package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick-relay/internal/models"
)

func pair(i int) []models.Turn {
	return []models.Turn{
		{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)},
		{Role: models.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
	}
}

func TestAppendCreatesKeyLazily(t *testing.T) {
	store := NewStore(0)
	assert.Equal(t, DefaultLimit, store.limit)
	assert.Nil(t, store.Get("default"))

	store.Append("default", pair(0)...)
	assert.Equal(t, pair(0), store.Get("default"))
	assert.Equal(t, 0, store.Len("other"))
}

func TestAppendEvictsOldestPair(t *testing.T) {
	store := NewStore(20)
	for i := 0; i < 11; i++ {
		store.Append("default", pair(i)...)
	}

	got := store.Get("default")
	require.Len(t, got, 20)

	var want []models.Turn
	for i := 1; i < 11; i++ {
		want = append(want, pair(i)...)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, models.RoleUser, got[0].Role)
}

func TestSingleAppendOverCapEvictsPair(t *testing.T) {
	store := NewStore(4)
	store.Append("k", pair(0)...)
	store.Append("k", pair(1)...)
	store.Append("k", models.Turn{Role: models.RoleUser, Content: "manual"})

	got := store.Get("k")
	require.Len(t, got, 3)
	assert.Equal(t, "q1", got[0].Content)
	assert.Equal(t, "manual", got[2].Content)
}

func TestGetReturnsSnapshot(t *testing.T) {
	store := NewStore(20)
	store.Append("k", pair(0)...)

	snapshot := store.Get("k")
	snapshot[0].Content = "mutated"
	store.Append("k", pair(1)...)

	assert.Equal(t, "q0", store.Get("k")[0].Content)
	assert.Len(t, snapshot, 2)
}

func TestClearIsGlobal(t *testing.T) {
	store := NewStore(20)
	store.Append("a", pair(0)...)
	store.Append("b", pair(1)...)

	store.Clear()

	assert.Nil(t, store.Get("a"))
	assert.Nil(t, store.Get("b"))
}

func TestConcurrentAppendKeepsPairsTogether(t *testing.T) {
	store := NewStore(20)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Append("k", pair(i)...)
		}(i)
	}
	wg.Wait()

	got := store.Get("k")
	require.Len(t, got, 20)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, models.RoleUser, got[i].Role)
		assert.Equal(t, models.RoleAssistant, got[i+1].Role)
		assert.Equal(t, got[i].Content[1:], got[i+1].Content[1:])
	}
}
