package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := newRecordCache[string]("test", 2, true)
	require.NoError(t, err)

	c.set("a", "1")
	c.set("b", "2")

	// Touch a so b becomes the eviction candidate
	_, ok := c.get("a")
	require.True(t, ok)

	c.set("c", "3")

	_, ok = c.get("b")
	assert.False(t, ok)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestCacheDeleteAndClear(t *testing.T) {
	c, err := newRecordCache[int]("test", 4, true)
	require.NoError(t, err)

	c.set("x", 1)
	c.set("y", 2)

	c.delete("x")
	_, ok := c.get("x")
	assert.False(t, ok)

	c.clear()
	_, ok = c.get("y")
	assert.False(t, ok)
	assert.Zero(t, c.len())
}

func TestCacheDisabledNeverHits(t *testing.T) {
	c, err := newRecordCache[string]("test", 10, false)
	require.NoError(t, err)

	c.set("a", "1")
	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Zero(t, c.len())
	assert.Zero(t, c.hitRate())
}

func TestCacheHitRate(t *testing.T) {
	c, err := newRecordCache[string]("test", 4, true)
	require.NoError(t, err)

	assert.Zero(t, c.hitRate())

	c.set("a", "1")
	c.get("a")
	c.get("a")
	c.get("missing")

	assert.InDelta(t, 2.0/3.0, c.hitRate(), 0.0001)
}

func TestCacheSetOverwrites(t *testing.T) {
	c, err := newRecordCache[string]("test", 4, true)
	require.NoError(t, err)

	c.set("a", "old")
	c.set("a", "new")

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.len())
}
