package relay

import (
	"context"
	"log"
	"log/slog"

	"github.com/go-monolith/mono"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/events"
	"github.com/example/docshare/modules/store"
)

// Module wraps the broker as a mono module and bridges committed
// messages onto the event bus.
type Module struct {
	store    *store.Module
	broker   *Broker
	eventBus mono.EventBus
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the relay module on top of the store.
func NewModule(st *store.Module) *Module {
	return &Module{store: st}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageCommittedV1.ToBase(),
	}
}

// Start builds the broker against the store's repositories.
func (m *Module) Start(_ context.Context) error {
	m.broker = NewBroker(m.store.Messages(), m.store.Rooms(), m.publishCommitted)
	log.Println("[relay] Module started")
	return nil
}

// Stop detaches every live subscription.
func (m *Module) Stop(_ context.Context) error {
	if m.broker != nil {
		m.broker.Shutdown()
	}
	log.Println("[relay] Module stopped")
	return nil
}

// Health reports the relay as operational once the broker exists.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.broker != nil,
		Message: "operational",
	}
}

// Broker exposes the broker to the api and session layers.
func (m *Module) Broker() *Broker {
	return m.broker
}

// publishCommitted pushes a committed message onto the event bus so
// other modules (broadcast, audit) can react without coupling to the
// broker. Delivery to relay subscribers already happened; a bus
// failure is logged, not surfaced to the sender.
func (m *Module) publishCommitted(msg share.Message) {
	if m.eventBus == nil {
		return
	}
	event := events.MessageCommittedEvent{Message: msg}
	if err := events.MessageCommittedV1.Publish(m.eventBus, event, nil); err != nil {
		slog.Warn("Failed to publish MessageCommitted event", "error", err)
	}
}
