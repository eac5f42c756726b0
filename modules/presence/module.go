package presence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/redis/go-redis/v9"

	"github.com/example/docshare/events"
	"github.com/example/docshare/modules/store"
)

// Module wires the presence service to Redis and keeps its cache fresh
// by invalidating rooms as messages commit.
type Module struct {
	store   *store.Module
	service *Service
	client  *redis.Client
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the presence module.
func NewModule(st *store.Module) *Module {
	return &Module{store: st}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start connects to Redis if configured. Without REDIS_ADDR the
// service runs uncached against the store.
func (m *Module) Start(ctx context.Context) error {
	window := DefaultWindow
	if v := os.Getenv("PRESENCE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PRESENCE_WINDOW: %w", err)
		}
		window = d
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		m.client = client
		log.Printf("[presence] Connected to redis at %s", addr)
	} else {
		log.Println("[presence] REDIS_ADDR not set - running uncached")
	}

	m.service = NewService(m.store.Messages(), m.client, window)
	log.Printf("[presence] Module started - window %s", window)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	log.Println("[presence] Module stopped")
	return nil
}

// Health pings Redis when caching is on.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.client == nil {
		return mono.HealthStatus{Healthy: true, Message: "operational (uncached)"}
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("redis unreachable: %v", err)}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational"}
}

// RegisterEventConsumers invalidates a room's cached roster whenever a
// message commits there.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageCommittedV1, m.handleMessageCommitted, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageCommitted consumer: %w", err)
	}
	log.Println("[presence] Registered event consumers: MessageCommitted")
	return nil
}

func (m *Module) handleMessageCommitted(ctx context.Context, event events.MessageCommittedEvent, _ *mono.Msg) error {
	if event.Message.SenderID != nil {
		m.service.Invalidate(ctx, event.Message.RoomID)
	}
	return nil
}

// Service exposes the presence service to the api layer.
func (m *Module) Service() *Service {
	return m.service
}
