package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := New[int]()

	_, ok := r.Get("missing")
	assert.False(t, ok)

	r.Add("one", 1)
	r.Add("two", 2)

	v, ok := r.Get("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"one", "two"}, r.Names())

	r.Del("one")
	_, ok = r.Get("one")
	assert.False(t, ok)

	r.Clear()
	assert.Zero(t, r.Len())
}

func TestGetOrAdd(t *testing.T) {
	r := New[int]()

	v, loaded := r.GetOrAdd("lazy", func() int { return 7 })
	assert.False(t, loaded)
	assert.Equal(t, 7, v)

	v, loaded = r.GetOrAdd("lazy", func() int { return 99 })
	assert.True(t, loaded)
	assert.Equal(t, 7, v, "the first value sticks")
}
