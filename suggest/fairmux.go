package suggest

// fairMux interleaves lines from several providers. Each provider gets its
// own queue; pop walks the providers round robin from a moving cursor, so a
// fast provider cannot starve the others no matter how quickly it fills
// its queue.
type fairMux struct {
	order  []string
	queues map[string][]string
	cursor int
}

func newFairMux(providers []string) *fairMux {
	queues := make(map[string][]string, len(providers))
	for _, p := range providers {
		queues[p] = nil
	}
	return &fairMux{order: append([]string(nil), providers...), queues: queues}
}

func (m *fairMux) push(provider, text string) {
	m.queues[provider] = append(m.queues[provider], text)
}

// pop removes and returns the next queued line in rotation order. The
// cursor advances past the provider served, so consecutive pops with
// multiple non-empty queues alternate between them.
func (m *fairMux) pop() (provider, text string, ok bool) {
	for i := 0; i < len(m.order); i++ {
		idx := (m.cursor + i) % len(m.order)
		name := m.order[idx]
		queue := m.queues[name]
		if len(queue) == 0 {
			continue
		}
		m.queues[name] = queue[1:]
		m.cursor = (idx + 1) % len(m.order)
		return name, queue[0], true
	}
	return "", "", false
}

func (m *fairMux) empty() bool {
	for _, q := range m.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}
