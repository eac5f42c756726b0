// Package store provides the durable SQLite-backed store for rooms,
// messages, users and documents. It is the single source of truth; all
// message writes go through the relay's publish path.
package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/docshare/domain/share"
)

// Module owns the database handle and the repositories built on it.
type Module struct {
	db     *gorm.DB
	dbPath string

	rooms     *RoomRepository
	messages  *MessageRepository
	users     *UserRepository
	documents *DocumentRepository
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new store module. The database path comes from
// DB_PATH, defaulting to docshare.db in the working directory.
func NewModule() *Module {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "docshare.db"
	}
	return &Module{dbPath: dbPath}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&share.Room{}, &share.Message{}, &User{}, &Document{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	m.db = db
	m.rooms = NewRoomRepository(db)
	m.messages = NewMessageRepository(db)
	m.users = NewUserRepository(db)
	m.documents = NewDocumentRepository(db)

	log.Printf("[store] Database opened at %s", m.dbPath)
	return nil
}

// Stop closes the underlying database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	log.Println("[store] Database closed")
	return sqlDB.Close()
}

// Health performs a database ping.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{Healthy: false, Message: "database not initialized"}
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": "sqlite", "path": m.dbPath},
	}
}

// Rooms returns the room repository.
func (m *Module) Rooms() *RoomRepository { return m.rooms }

// Messages returns the message repository.
func (m *Module) Messages() *MessageRepository { return m.messages }

// Users returns the user repository.
func (m *Module) Users() *UserRepository { return m.users }

// Documents returns the document repository.
func (m *Module) Documents() *DocumentRepository { return m.documents }
