package market_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-sim-go/market"
)

func TestSignalCacheDedup(t *testing.T) {
	c := market.NewSignalCache()
	assert.True(t, c.Put(market.Signal{ID: "a", Entry: 100}))
	assert.False(t, c.Put(market.Signal{ID: "a", Entry: 101})) // 同 id 只刷新内容

	sig, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 101.0, sig.Entry)
	assert.Equal(t, 1, c.Len())
}

func TestSignalCacheEvictsOldest(t *testing.T) {
	c := market.NewSignalCache()
	for i := 0; i < market.SignalCacheCap+10; i++ {
		c.Put(market.Signal{ID: fmt.Sprintf("s%d", i)})
	}
	assert.Equal(t, market.SignalCacheCap, c.Len())

	_, ok := c.Get("s0")
	assert.False(t, ok)
	_, ok = c.Get(fmt.Sprintf("s%d", market.SignalCacheCap+9))
	assert.True(t, ok)

	recent := c.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, fmt.Sprintf("s%d", market.SignalCacheCap+9), recent[1].ID)
}

func TestBarWindow(t *testing.T) {
	w := market.NewBarWindow()
	_, ok := w.Last()
	assert.False(t, ok)

	for i := 0; i < market.BarWindowCap+5; i++ {
		w.Push(market.Bar{Index: i, Close: float64(i)})
	}
	assert.Equal(t, market.BarWindowCap, w.Len())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, market.BarWindowCap+4, last.Index)

	tail := w.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, last.Index, tail[2].Index)
	assert.Equal(t, last.Index-2, tail[0].Index)
}

func TestBarWindowSinceIndex(t *testing.T) {
	w := market.NewBarWindow()
	for i := 10; i < 20; i++ {
		w.Push(market.Bar{Index: i})
	}
	assert.Equal(t, 5, w.SinceIndex(15))
	assert.Equal(t, 10, w.SinceIndex(0))
	assert.Equal(t, 0, w.SinceIndex(25))
}

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, 1.0, market.Long.Direction())
	assert.Equal(t, -1.0, market.Short.Direction())
	assert.Equal(t, market.Short, market.Long.Opposite())
	assert.Equal(t, "long", market.Long.String())
}
