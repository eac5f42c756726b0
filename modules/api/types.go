package api

import (
	"time"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/modules/store"
)

// ErrorResponse is the error body returned by all handlers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// RegisterRequest is the body for POST /api/v1/auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// LoginRequest is the body for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the account and its bearer token.
type AuthResponse struct {
	User  *store.User `json:"user"`
	Token string      `json:"token"`
}

// CreateRoomRequest is the body for POST /api/v1/rooms.
type CreateRoomRequest struct {
	Title   string `json:"title"`
	Welcome string `json:"welcome"`
}

// RoomResponse is a room plus its derived share link.
type RoomResponse struct {
	Room      *share.Room `json:"room"`
	ShareLink string      `json:"share_link"`
}

// ShareViewResponse is the room-entry aggregate: the room, its full
// message view and the recently active senders.
type ShareViewResponse struct {
	Room      *share.Room            `json:"room"`
	ShareLink string                 `json:"share_link"`
	Messages  []share.Message        `json:"messages"`
	Senders   []share.SenderActivity `json:"senders"`
}

// SendMessageRequest is the body for POST /api/v1/rooms/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// HistoryResponse is the committed history of a room.
type HistoryResponse struct {
	RoomID   string          `json:"room_id"`
	Messages []share.Message `json:"messages"`
}

// PresenceResponse lists recently active senders of a room.
type PresenceResponse struct {
	RoomID  string                 `json:"room_id"`
	Window  string                 `json:"window"`
	Senders []share.SenderActivity `json:"senders"`
}

// AnnounceRequest is the body for POST /api/v1/documents/:id/announce.
type AnnounceRequest struct {
	RoomID string `json:"room_id"`
}

// VerifyResponse reports whether a supplied copy matches the stored
// document's checksum.
type VerifyResponse struct {
	Matches bool `json:"matches"`
}

// DocumentListResponse lists an owner's documents.
type DocumentListResponse struct {
	Documents []store.Document `json:"documents"`
}

// inboundFrame is what WebSocket clients send.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// historyFrame is pushed once on WebSocket attach.
type historyFrame struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	Messages []share.Message `json:"messages"`
}

// ackFrame confirms a WebSocket send with its committed message.
type ackFrame struct {
	Type    string        `json:"type"`
	Message share.Message `json:"message"`
}

// errorFrame reports a rejected WebSocket send.
type errorFrame struct {
	Type    string    `json:"type"`
	Error   string    `json:"error"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
