package main

import (
	"context"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/docshare/modules/api"
	"github.com/example/docshare/modules/broadcast"
	"github.com/example/docshare/modules/directory"
	"github.com/example/docshare/modules/docs"
	"github.com/example/docshare/modules/identity"
	"github.com/example/docshare/modules/presence"
	"github.com/example/docshare/modules/relay"
	"github.com/example/docshare/modules/session"
	"github.com/example/docshare/modules/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== DocShare - Document Rooms with Realtime Chat ===")

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	storeModule := store.NewModule()
	relayModule := relay.NewModule(storeModule)
	directoryModule := directory.NewModule(storeModule, relayModule)
	sessionModule := session.NewModule(storeModule, relayModule)
	presenceModule := presence.NewModule(storeModule)
	identityModule := identity.NewModule(storeModule)
	docsModule := docs.NewModule(storeModule, relayModule)
	broadcastModule := broadcast.NewModule()
	apiModule := api.NewModule(storeModule, relayModule, directoryModule, sessionModule, presenceModule, identityModule, docsModule)

	// Inject broadcast hub into API module
	// (This is done manually because the hub is not exposed via ServiceContainer)
	apiModule.SetHub(broadcastModule.GetHub())

	// Register modules with the framework.
	// Order: storage first, then the relay core, then everything that
	// rides on it, then the outward-facing surfaces.
	app.Register(storeModule)     // SQLite persistence
	app.Register(relayModule)     // Commit-ordered fanout + event emitter
	app.Register(directoryModule) // Share tokens and room lifecycle
	app.Register(sessionModule)   // Client view reconciliation
	app.Register(presenceModule)  // Recent-sender rosters (Redis cached)
	app.Register(identityModule)  // Accounts and JWT
	app.Register(docsModule)      // Uploads and checksum verification
	app.Register(broadcastModule) // WebSocket hub + event consumer
	app.Register(apiModule)       // HTTP/WebSocket API

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo()

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Storage: SQLite via GORM")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Println("  - Presence cache: Redis (optional, REDIS_ADDR)")
	log.Println("")
	log.Println("Event flow:")
	log.Println("  - MessageCommitted events -> broadcast module -> WebSocket clients")
	log.Println("  - MessageCommitted events -> presence module -> cache invalidation")
	log.Println("  - RoomDeactivated events -> broadcast module -> client eviction")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  POST   /api/v1/auth/register            - Create an account")
	log.Println("  POST   /api/v1/auth/login               - Log in")
	log.Println("  GET    /api/v1/auth/me                  - Current account")
	log.Println("  GET    /api/v1/share/:token             - Resolve a share link")
	log.Println("  POST   /api/v1/rooms                    - Create a room")
	log.Println("  POST   /api/v1/rooms/:id/deactivate     - Close a room")
	log.Println("  GET    /api/v1/rooms/:id/history        - Message history (?after=id)")
	log.Println("  GET    /api/v1/rooms/:id/presence       - Recently active senders")
	log.Println("  POST   /api/v1/rooms/:id/messages       - Send a message")
	log.Println("  POST   /api/v1/documents                - Upload a document")
	log.Println("  GET    /api/v1/documents                - List documents")
	log.Println("  GET    /api/v1/documents/stats          - Aggregate stats")
	log.Println("  GET    /api/v1/documents/:id/download   - Download")
	log.Println("  POST   /api/v1/documents/:id/verify     - Re-check checksum")
	log.Println("  POST   /api/v1/documents/:id/announce   - Post into a room")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws/:token):", port)
	log.Println("  Connect with the room's share token; add ?auth=<jwt> to send")
	log.Println("  Server frames: history, message, ack, error, room_closed")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
