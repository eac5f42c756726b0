package docs

import (
	"context"
	"log"
	"os"

	"github.com/go-monolith/mono"

	"github.com/example/docshare/modules/relay"
	"github.com/example/docshare/modules/store"
)

// Module provides document upload, verification and room announcements.
type Module struct {
	store   *store.Module
	relay   *relay.Module
	service *Service
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)

// NewModule creates the docs module.
func NewModule(st *store.Module, rl *relay.Module) *Module {
	return &Module{store: st, relay: rl}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "docs"
}

// Start builds the service with the configured upload directory.
func (m *Module) Start(_ context.Context) error {
	dir := os.Getenv("UPLOAD_DIR")
	if dir == "" {
		dir = "uploads"
	}

	svc, err := NewService(m.store.Documents(), m.relay.Broker(), dir)
	if err != nil {
		return err
	}
	m.service = svc
	log.Printf("[docs] Module started - storing uploads in %s", dir)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[docs] Module stopped")
	return nil
}

// Service exposes the document service to the api layer.
func (m *Module) Service() *Service {
	return m.service
}
