package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCompute_SingleFlight(t *testing.T) {
	c := NewScoreCache(10, time.Minute)
	defer c.Stop()

	var calls int32
	compute := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute("BTCUSDT|1h|1000", compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestClear_InvalidatesCache(t *testing.T) {
	c := NewScoreCache(10, time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	_, ok := c.Get("k")
	require.True(t, ok)

	c.Clear()
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestEviction_BoundedSize(t *testing.T) {
	c := NewScoreCache(2, time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.LessOrEqual(t, c.Stats().Entries, 2)
}
