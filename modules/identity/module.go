package identity

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-monolith/mono"

	"github.com/example/docshare/modules/store"
)

// Module provides account registration, login and token validation.
type Module struct {
	store   *store.Module
	service *Service
	jwt     *JWTManager
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)

// NewModule creates the identity module.
func NewModule(st *store.Module) *Module {
	return &Module{store: st}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "identity"
}

// Start builds the service from the environment.
func (m *Module) Start(_ context.Context) error {
	config := DefaultJWTConfig()
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.SecretKey = secret
	} else {
		log.Println("[identity] JWT_SECRET not set - using development secret")
	}
	if v := os.Getenv("JWT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.TokenDuration = d
		}
	}

	m.jwt = NewJWTManager(config)
	m.service = NewService(m.store.Users(), NewPasswordHasher(), m.jwt)
	log.Println("[identity] Module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[identity] Module stopped")
	return nil
}

// Service exposes the identity service to the api layer.
func (m *Module) Service() *Service {
	return m.service
}
