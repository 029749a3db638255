package syncmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetGetHas(t *testing.T) {
	m := New[int]()
	assert.False(t, m.Has("a"))

	m.Set("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, m.Has("a"))
}

func TestMap_Delete(t *testing.T) {
	m := New[string]()
	m.Set("k", "v")
	m.Delete("k")
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestMap_Update_AtomicSingleKeyMutation(t *testing.T) {
	m := New[int]()

	m.Update("counter", func(current int, existed bool) int {
		assert.False(t, existed)
		return current + 1
	})
	m.Update("counter", func(current int, existed bool) int {
		assert.True(t, existed)
		return current + 1
	})

	v, _ := m.Get("counter")
	assert.Equal(t, 2, v)
}

func TestMap_Update_ConcurrentSameKeyNeverLosesAnIncrement(t *testing.T) {
	m := New[int]()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.Update("shared", func(current int, existed bool) int { return current + 1 })
		}()
	}
	wg.Wait()

	v, _ := m.Get("shared")
	assert.Equal(t, n, v)
}

func TestMap_LenAndRange(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(string(rune('a'+i%26))+string(rune(i)), i)
	}
	assert.Equal(t, 50, m.Len())

	seen := 0
	m.Range(func(key string, value int) bool {
		seen++
		return true
	})
	assert.Equal(t, 50, seen)
}

func TestMap_Range_EarlyStop(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	seen := 0
	m.Range(func(key string, value int) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestMap_DeleteWhere(t *testing.T) {
	m := New[int]()
	m.Set("keep", 1)
	m.Set("drop1", 2)
	m.Set("drop2", 3)

	removed := m.DeleteWhere(func(key string, value int) bool {
		return value > 1
	})

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has("keep"))
}
