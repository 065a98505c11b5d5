package embedding

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	v, ok := c.Get("m", "a")
	assert.False(t, ok)
	assert.Nil(t, v)

	c.Set("m", "a", []float32{1, 2, 3})
	v, ok = c.Get("m", "a")
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)

	c.Set("m", "b", []float32{4, 5})
	// Touching a makes b the eviction candidate.
	c.Get("m", "a")
	c.Set("m", "c", []float32{6})

	_, ok = c.Get("m", "b")
	assert.False(t, ok)
	_, ok = c.Get("m", "a")
	assert.True(t, ok)
	_, ok = c.Get("m", "c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_KeyedByModel(t *testing.T) {
	c := NewCache(4)
	c.Set("small", "q", []float32{1})
	_, ok := c.Get("large", "q")
	assert.False(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g+i)%32)
				c.Set("m", key, []float32{float32(i)})
				c.Get("m", key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
