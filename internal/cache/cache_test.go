package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	c := New[string, float64]()

	_, _, ok := c.Get("ETH/USDC")
	require.False(t, ok)

	now := time.Now()
	require.True(t, c.Put("ETH/USDC", 3100.5, now))

	v, age, ok := c.Get("ETH/USDC")
	require.True(t, ok)
	assert.Equal(t, 3100.5, v)
	assert.GreaterOrEqual(t, age, time.Duration(0))
}

func TestPutRejectsOlderTimestamp(t *testing.T) {
	c := New[string, float64]()
	now := time.Now()

	require.True(t, c.Put("BTC/USDC", 64000, now))
	assert.False(t, c.Put("BTC/USDC", 63000, now.Add(-time.Second)))

	v, _, ok := c.Get("BTC/USDC")
	require.True(t, ok)
	assert.Equal(t, float64(64000), v)

	// equal timestamp overwrites: "not older" wins
	assert.True(t, c.Put("BTC/USDC", 64100, now))
	v, _, _ = c.Get("BTC/USDC")
	assert.Equal(t, float64(64100), v)
}

func TestAgeReflectsObservation(t *testing.T) {
	c := New[string, float64]()
	c.Put("SOL/USDC", 150, time.Now().Add(-90*time.Second))

	_, age, ok := c.Get("SOL/USDC")
	require.True(t, ok)
	assert.Greater(t, age, 89*time.Second)
}

func TestConcurrentWriters(t *testing.T) {
	c := New[string, int]()
	base := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i, base.Add(time.Duration(i)*time.Millisecond))
			c.Get("k")
		}(i)
	}
	wg.Wait()

	v, _, ok := c.Get("k")
	require.True(t, ok)
	// highest timestamp always wins regardless of goroutine interleaving
	assert.Equal(t, 99, v)
	assert.Equal(t, 1, c.Len())
}
