package suggest

import (
	"strings"
	"sync"
	"unicode"
)

// similarityThreshold is the fuzzy match cutoff. Two normalized texts whose
// similarity exceeds it are treated as the same suggestion.
const similarityThreshold = 0.85

// Session deduplicates suggestion text across providers and across batches.
// A session is safe for concurrent use and keeps admitting until Close.
type Session struct {
	mu     sync.Mutex
	exact  map[string]struct{}
	seen   []string
	batch  int
	closed bool
}

// NewSession creates an empty dedup session.
func NewSession() *Session {
	return &Session{exact: make(map[string]struct{})}
}

// Admit reports whether text is new to the session and, if so, remembers
// it. Matching is case and punctuation insensitive, and near duplicates
// are rejected by edit distance. A closed session admits nothing.
func (s *Session) Admit(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, dup := s.exact[norm]; dup {
		return false
	}
	for _, prior := range s.seen {
		if similarity(norm, prior) > similarityThreshold {
			return false
		}
	}

	s.exact[norm] = struct{}{}
	s.seen = append(s.seen, norm)
	return true
}

// NextBatch advances the batch counter and returns the new batch number.
// Batches are one-based.
func (s *Session) NextBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch++
	return s.batch
}

// Len returns the number of distinct suggestions admitted so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Close stops the session. Subsequent Admit calls return false.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// normalize lowercases, strips punctuation and collapses runs of
// whitespace, so "  Apple! " and "apple" compare equal.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	pendingSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity returns 1 - editDistance/maxLen over the two strings, in
// [0, 1]. Identical strings score 1. Lengths and edits count runes, so
// non-ASCII text is not penalized for its encoding width.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(a, b))/float64(longest)
}

// editDistance computes the Levenshtein distance over runes with a
// rolling row.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
