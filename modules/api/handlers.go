package api

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/modules/broadcast"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes() {
	m.app.Get("/health", m.healthHandler)

	// WebSocket attach point: share token in the path, optional JWT in
	// the auth query parameter for send rights.
	m.app.Use("/ws/:token", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws/:token", websocket.New(m.handleWebSocket))

	api := m.app.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Post("/register", m.register)
	auth.Post("/login", m.login)
	auth.Get("/me", m.requireAuth(), m.me)

	// Share tokens resolve without authentication; holding the link is
	// the capability.
	api.Get("/share/:token", m.resolveShare)
	api.Get("/share/:token/view", m.shareView)

	rooms := api.Group("/rooms")
	rooms.Post("/", m.requireAuth(), m.createRoom)
	rooms.Post("/:id/deactivate", m.requireAuth(), m.deactivateRoom)
	rooms.Get("/:id/history", m.getHistory)
	rooms.Get("/:id/presence", m.getPresence)
	rooms.Post("/:id/messages", m.requireAuth(), m.sendMessage)

	documents := api.Group("/documents", m.requireAuth())
	documents.Post("/", m.uploadDocument)
	documents.Get("/", m.listDocuments)
	documents.Get("/stats", m.documentStats)
	documents.Get("/:id/download", m.downloadDocument)
	documents.Post("/:id/verify", m.verifyDocument)
	documents.Post("/:id/announce", m.announceDocument)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
		},
	})
}

// register handles POST /api/v1/auth/register.
func (m *APIModule) register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	user, token, err := m.identity.Service().Register(c.UserContext(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{User: user, Token: token})
}

// login handles POST /api/v1/auth/login.
func (m *APIModule) login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	user, token, err := m.identity.Service().Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(AuthResponse{User: user, Token: token})
}

// me handles GET /api/v1/auth/me.
func (m *APIModule) me(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// resolveShare handles GET /api/v1/share/:token.
func (m *APIModule) resolveShare(c *fiber.Ctx) error {
	room, err := m.directory.Service().Resolve(c.UserContext(), c.Params("token"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(RoomResponse{Room: room, ShareLink: room.ShareLink(m.baseURL)})
}

// shareView handles GET /api/v1/share/:token/view: the room-entry
// aggregate. A short-lived session produces the message view so the
// subscribe-then-read boundary and id dedup apply to it the same way
// they do on a live stream.
func (m *APIModule) shareView(c *fiber.Ctx) error {
	room, err := m.directory.Service().Resolve(c.UserContext(), c.Params("token"))
	if err != nil {
		return domainError(c, err)
	}

	sess, err := m.sessions.Open(c.UserContext(), room.ID, "")
	if err != nil {
		return domainError(c, err)
	}
	defer m.sessions.Release(sess)

	senders, err := m.presence.Service().RecentSenders(c.UserContext(), room.ID)
	if err != nil {
		return domainError(c, err)
	}

	entries := sess.Snapshot()
	msgs := make([]share.Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.Message)
	}
	return c.JSON(ShareViewResponse{
		Room:      room,
		ShareLink: room.ShareLink(m.baseURL),
		Messages:  msgs,
		Senders:   senders,
	})
}

// createRoom handles POST /api/v1/rooms.
func (m *APIModule) createRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	room, err := m.directory.Service().Create(c.UserContext(), currentUser(c).ID, req.Title, req.Welcome)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(RoomResponse{Room: room, ShareLink: room.ShareLink(m.baseURL)})
}

// deactivateRoom handles POST /api/v1/rooms/:id/deactivate.
func (m *APIModule) deactivateRoom(c *fiber.Ctx) error {
	if err := m.directory.Service().Deactivate(c.UserContext(), currentUser(c).ID, c.Params("id")); err != nil {
		return domainError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// getHistory handles GET /api/v1/rooms/:id/history. An after query
// parameter returns only messages with a greater id, which is how
// clients resync after a dropped stream.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if _, err := m.store.Rooms().FindByID(c.UserContext(), roomID); err != nil {
		return domainError(c, err)
	}

	var msgs []share.Message
	var err error
	if after := c.Query("after"); after != "" {
		afterID, perr := strconv.ParseInt(after, 10, 64)
		if perr != nil {
			return badRequest(c, "after must be a message id")
		}
		msgs, err = m.store.Messages().HistorySince(c.UserContext(), roomID, afterID)
	} else {
		msgs, err = m.store.Messages().History(c.UserContext(), roomID)
	}
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(HistoryResponse{RoomID: roomID, Messages: msgs})
}

// getPresence handles GET /api/v1/rooms/:id/presence.
func (m *APIModule) getPresence(c *fiber.Ctx) error {
	roomID := c.Params("id")
	if _, err := m.store.Rooms().FindByID(c.UserContext(), roomID); err != nil {
		return domainError(c, err)
	}

	senders, err := m.presence.Service().RecentSenders(c.UserContext(), roomID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(PresenceResponse{
		RoomID:  roomID,
		Window:  m.presence.Service().Window().String(),
		Senders: senders,
	})
}

// sendMessage handles POST /api/v1/rooms/:id/messages.
func (m *APIModule) sendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	senderID := currentUser(c).ID
	msg, err := m.relay.Broker().Publish(c.UserContext(), share.Message{
		RoomID:   c.Params("id"),
		SenderID: &senderID,
		Content:  req.Content,
		Kind:     share.KindText,
	})
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// uploadDocument handles POST /api/v1/documents (multipart).
func (m *APIModule) uploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Missing file field")
	}
	title := c.FormValue("title")
	if title == "" {
		title = fileHeader.Filename
	}

	f, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Unreadable upload")
	}
	defer f.Close()

	doc, err := m.docs.Service().Upload(
		c.UserContext(),
		currentUser(c).ID,
		title,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		f,
	)
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// listDocuments handles GET /api/v1/documents.
func (m *APIModule) listDocuments(c *fiber.Ctx) error {
	documents, err := m.docs.Service().List(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(DocumentListResponse{Documents: documents})
}

// documentStats handles GET /api/v1/documents/stats.
func (m *APIModule) documentStats(c *fiber.Ctx) error {
	stats, err := m.docs.Service().Stats(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(stats)
}

// downloadDocument handles GET /api/v1/documents/:id/download.
func (m *APIModule) downloadDocument(c *fiber.Ctx) error {
	doc, r, err := m.docs.Service().Open(c.UserContext(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	if doc.OwnerID != currentUser(c).ID {
		r.Close()
		return domainError(c, share.ErrNotPermitted)
	}

	c.Set(fiber.HeaderContentType, doc.MimeType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.Filename+`"`)
	return c.SendStream(r, int(doc.Size))
}

// verifyDocument handles POST /api/v1/documents/:id/verify. With no
// body the stored bytes are re-hashed against the recorded checksum;
// with a multipart file field the supplied copy is checked instead.
func (m *APIModule) verifyDocument(c *fiber.Ctx) error {
	if fileHeader, err := c.FormFile("file"); err == nil {
		f, err := fileHeader.Open()
		if err != nil {
			return badRequest(c, "Unreadable upload")
		}
		defer f.Close()

		matches, err := m.docs.Service().Matches(c.UserContext(), c.Params("id"), f)
		if err != nil {
			return domainError(c, err)
		}
		return c.JSON(VerifyResponse{Matches: matches})
	}

	doc, err := m.docs.Service().Verify(c.UserContext(), c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(doc)
}

// announceDocument handles POST /api/v1/documents/:id/announce.
func (m *APIModule) announceDocument(c *fiber.Ctx) error {
	var req AnnounceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	msg, err := m.docs.Service().Announce(c.UserContext(), req.RoomID, currentUser(c).ID, c.Params("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: msg,
	})
}

// handleWebSocket attaches a client to a room's live stream. The share
// token is the read capability; sends additionally need a valid JWT in
// the auth query parameter. The client receives the full history
// first, then live frames from the hub; overlap between the two is
// deduplicated client side by message id.
func (m *APIModule) handleWebSocket(conn *websocket.Conn) {
	ctx := context.Background()

	room, err := m.directory.Service().Resolve(ctx, conn.Params("token"))
	if err != nil {
		writeErrorFrame(conn, "not_found", "Unknown share link")
		conn.Close()
		return
	}

	var userID string
	if token := conn.Query("auth"); token != "" {
		user, err := m.identity.Service().CurrentUser(ctx, token)
		if err != nil {
			writeErrorFrame(conn, "unauthorized", "Invalid or expired token")
			conn.Close()
			return
		}
		userID = user.ID
	}

	client := &broadcast.Client{
		ID:     uuid.New().String(),
		UserID: userID,
		RoomID: room.ID,
		Conn:   conn,
	}
	m.hub.Register(client)
	defer m.hub.Unregister(client)

	// History after registration: a commit that races the attach shows
	// up in at least one of the two. From here on the hub loop may write
	// to the connection too, so this goroutine writes via the client's
	// lock instead of the conn.
	history, err := m.store.Messages().History(ctx, room.ID)
	if err != nil {
		writeClientError(client, "internal_error", "Failed to load history")
		return
	}
	if err := client.WriteJSON(historyFrame{Type: "history", RoomID: room.ID, Messages: history}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			writeClientError(client, "invalid_request", "Invalid JSON frame")
			continue
		}
		if frame.Type != "message" {
			writeClientError(client, "invalid_request", "Unknown frame type")
			continue
		}
		if userID == "" {
			writeClientError(client, "unauthorized", "Sending requires authentication")
			continue
		}

		senderID := userID
		msg, err := m.relay.Broker().Publish(ctx, share.Message{
			RoomID:   room.ID,
			SenderID: &senderID,
			Content:  frame.Content,
			Kind:     share.KindText,
		})
		if err != nil {
			writeClientError(client, "rejected", err.Error())
			continue
		}
		if err := client.WriteJSON(ackFrame{Type: "ack", Message: *msg}); err != nil {
			return
		}
	}
}

// writeErrorFrame writes directly to the conn. Only valid before the
// client is registered with the hub, while this goroutine is the sole
// writer.
func writeErrorFrame(conn *websocket.Conn, name, msg string) {
	if err := conn.WriteJSON(errorFrame{Type: "error", Error: name, Message: msg, At: time.Now().UTC()}); err != nil {
		log.Printf("[api] Failed to write error frame: %v", err)
	}
}

func writeClientError(client *broadcast.Client, name, msg string) {
	if err := client.WriteJSON(errorFrame{Type: "error", Error: name, Message: msg, At: time.Now().UTC()}); err != nil {
		log.Printf("[api] Failed to write error frame: %v", err)
	}
}
