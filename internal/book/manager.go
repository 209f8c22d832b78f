package book

import "sync"

// Manager owns one Book per symbol. Books are created on first
// subscription and never removed while readers may hold them.
type Manager struct {
	mu    sync.Mutex
	books map[string]*Book
}

// NewManager creates an empty book manager.
func NewManager() *Manager {
	return &Manager{books: make(map[string]*Book)}
}

// GetOrCreate returns the book for a symbol, creating it when absent.
func (m *Manager) GetOrCreate(symbol string) *Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[symbol]
	if !ok {
		b = &Book{}
		m.books[symbol] = b
	}
	return b
}

// Get returns the book for a symbol, or nil when none exists yet.
func (m *Manager) Get(symbol string) *Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[symbol]
}

// Size returns the number of tracked symbols.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.books)
}
