package calendar

import (
	"fmt"
	"sync"

	"meetsync"
)

// Mux registers provider adapters by kind and hands them out to the
// engine and sync queue.
type Mux struct {
	mu        sync.Mutex
	providers map[meetsync.ProviderKind]meetsync.Provider
}

func NewMux() *Mux {
	return &Mux{
		providers: make(map[meetsync.ProviderKind]meetsync.Provider),
	}
}

func (m *Mux) Get(kind meetsync.ProviderKind) (meetsync.Provider, error) {
	provider, ok := m.providers[kind]
	if !ok {
		return nil, fmt.Errorf("calendar: provider %q is not implemented", kind)
	}
	return provider, nil
}

func (m *Mux) Register(kind meetsync.ProviderKind, provider meetsync.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[kind] = provider
}
