package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/docshare/events"
)

// Module runs the WebSocket hub and feeds it from the event bus:
// committed messages fan out to room clients, room deactivation evicts
// them.
type Module struct {
	hub       *Hub
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the broadcast module.
func NewModule() *Module {
	return &Module{hub: NewHub()}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start launches the hub loop.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - WebSocket hub running")
	return nil
}

// Stop shuts the hub down and waits for it.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageCommittedV1, m.handleMessageCommitted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageCommitted consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeactivatedV1, m.handleRoomDeactivated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDeactivated consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: MessageCommitted, RoomDeactivated")
	return nil
}

func (m *Module) handleMessageCommitted(_ context.Context, event events.MessageCommittedEvent, _ *mono.Msg) error {
	m.hub.BroadcastMessage(event.Message)
	return nil
}

func (m *Module) handleRoomDeactivated(_ context.Context, event events.RoomDeactivatedEvent, _ *mono.Msg) error {
	log.Printf("[broadcast] Room %s deactivated - evicting clients", event.RoomID)
	m.hub.CloseRoom(event.RoomID, "room deactivated")
	return nil
}

// GetHub returns the WebSocket hub for the API module to use.
func (m *Module) GetHub() *Hub {
	return m.hub
}
