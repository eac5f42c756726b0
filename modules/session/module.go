package session

import (
	"context"
	"log"
	"sync"

	"github.com/go-monolith/mono"

	"github.com/example/docshare/modules/relay"
	"github.com/example/docshare/modules/store"
)

// Module hands out reconciling sessions backed by the relay and store,
// and tears down whatever is still open on shutdown.
type Module struct {
	store *store.Module
	relay *relay.Module

	mu   sync.Mutex
	open map[*Session]struct{}
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the session module.
func NewModule(st *store.Module, rl *relay.Module) *Module {
	return &Module{
		store: st,
		relay: rl,
		open:  make(map[*Session]struct{}),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "session"
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[session] Module started")
	return nil
}

// Stop closes every session still open.
func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.open))
	for s := range m.open {
		sessions = append(sessions, s)
	}
	m.open = make(map[*Session]struct{})
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	log.Printf("[session] Module stopped - closed %d sessions", len(sessions))
	return nil
}

// Health reports the number of open sessions.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	m.mu.Lock()
	count := len(m.open)
	m.mu.Unlock()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"open_sessions": count},
	}
}

// Open creates and opens a session for one sender in one room.
func (m *Module) Open(ctx context.Context, roomID, senderID string) (*Session, error) {
	broker := m.relay.Broker()
	s := New(roomID, senderID, broker, m.store.Messages(), func(roomID string) Stream {
		return broker.Subscribe(roomID)
	})
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.open[s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

// Release closes a session and forgets it.
func (m *Module) Release(s *Session) {
	m.mu.Lock()
	delete(m.open, s)
	m.mu.Unlock()
	s.Close()
}
