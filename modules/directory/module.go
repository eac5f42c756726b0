package directory

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/events"
	"github.com/example/docshare/modules/relay"
	"github.com/example/docshare/modules/store"
)

// Module exposes the room directory and publishes room lifecycle
// events on the bus.
type Module struct {
	store    *store.Module
	relay    *relay.Module
	service  *Service
	eventBus mono.EventBus
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventBusAwareModule = (*Module)(nil)
	_ mono.EventEmitterModule  = (*Module)(nil)
)

// NewModule creates the directory module on top of the store and relay.
func NewModule(st *store.Module, rl *relay.Module) *Module {
	return &Module{store: st, relay: rl}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "directory"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.RoomDeactivatedV1.ToBase(),
	}
}

// Start wires the service against the store and the relay broker.
func (m *Module) Start(_ context.Context) error {
	svc, err := NewService(
		m.store.Rooms(),
		m.relay.Broker(),
		nil, nil,
		m.publishCreated,
		m.publishClosed,
	)
	if err != nil {
		return err
	}
	m.service = svc
	log.Println("[directory] Module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[directory] Module stopped")
	return nil
}

// Service exposes the directory service to the api layer.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) publishCreated(room share.Room) {
	if m.eventBus == nil {
		return
	}
	event := events.RoomCreatedEvent{
		RoomID:     room.ID,
		ShareToken: room.ShareToken,
		Title:      room.Title,
		CreatedBy:  room.CreatedBy,
		Timestamp:  room.CreatedAt,
	}
	if err := events.RoomCreatedV1.Publish(m.eventBus, event, nil); err != nil {
		slog.Warn("Failed to publish RoomCreated event", "error", err)
	}
}

func (m *Module) publishClosed(room share.Room, actorID string) {
	if m.eventBus == nil {
		return
	}
	event := events.RoomDeactivatedEvent{
		RoomID:    room.ID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
	}
	if err := events.RoomDeactivatedV1.Publish(m.eventBus, event, nil); err != nil {
		slog.Warn("Failed to publish RoomDeactivated event", "error", err)
	}
}
