package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFairMuxInterleaves(t *testing.T) {
	m := newFairMux([]string{"alpha", "bravo", "charlie"})

	// alpha floods its queue before the others contribute anything.
	for i := 0; i < 10; i++ {
		m.push("alpha", "a")
	}
	m.push("bravo", "b")
	m.push("charlie", "c")

	var order []string
	for i := 0; i < 3; i++ {
		name, _, ok := m.pop()
		assert.True(t, ok)
		order = append(order, name)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, order,
		"the first pass serves each provider once despite the flood")

	name, _, ok := m.pop()
	assert.True(t, ok)
	assert.Equal(t, "alpha", name, "only alpha has anything left")
}

func TestFairMuxRoundRobinSteadyState(t *testing.T) {
	m := newFairMux([]string{"alpha", "bravo"})
	for i := 0; i < 3; i++ {
		m.push("alpha", "a")
		m.push("bravo", "b")
	}

	var order []string
	for {
		name, _, ok := m.pop()
		if !ok {
			break
		}
		order = append(order, name)
	}
	assert.Equal(t, []string{"alpha", "bravo", "alpha", "bravo", "alpha", "bravo"}, order)
}

func TestFairMuxSkipsEmptyQueues(t *testing.T) {
	m := newFairMux([]string{"alpha", "bravo", "charlie"})
	m.push("charlie", "c1")
	m.push("charlie", "c2")

	name, text, ok := m.pop()
	assert.True(t, ok)
	assert.Equal(t, "charlie", name)
	assert.Equal(t, "c1", text)

	name, text, ok = m.pop()
	assert.True(t, ok)
	assert.Equal(t, "charlie", name)
	assert.Equal(t, "c2", text)

	_, _, ok = m.pop()
	assert.False(t, ok)
	assert.True(t, m.empty())
}

func TestFairMuxDrainOrder(t *testing.T) {
	m := newFairMux([]string{"alpha", "bravo"})
	m.push("alpha", "a1")
	m.push("alpha", "a2")
	m.push("bravo", "b1")

	var texts []string
	for {
		_, text, ok := m.pop()
		if !ok {
			break
		}
		texts = append(texts, text)
	}
	assert.Equal(t, []string{"a1", "b1", "a2"}, texts)
}
