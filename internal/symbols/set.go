package symbols

import "sync"

// Set tracks the symbols with a live market data subscription. The
// strategy validation gate consults it before acting on a book.
type Set struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewSet creates a set pre-populated with the given symbols.
func NewSet(initial ...string) *Set {
	s := &Set{set: make(map[string]struct{}, len(initial))}
	for _, sym := range initial {
		s.set[sym] = struct{}{}
	}
	return s
}

// Add inserts a symbol and reports whether it was new.
func (s *Set) Add(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[symbol]; ok {
		return false
	}
	s.set[symbol] = struct{}{}
	return true
}

// Subscribed reports whether the symbol has a live subscription.
func (s *Set) Subscribed(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[symbol]
	return ok
}

// All returns a copy of the subscribed symbols.
func (s *Set) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.set))
	for sym := range s.set {
		out = append(out, sym)
	}
	return out
}

// Count returns the number of subscribed symbols.
func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
