package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/docshare/domain/share"
)

// MessageCommittedEvent is emitted after a message has been durably stored.
// Fan-out to WebSocket clients rides this event, so its emit order matches
// the store's commit order.
type MessageCommittedEvent struct {
	Message share.Message `json:"message"`
}

// RoomCreatedEvent is emitted when a new share room is created.
type RoomCreatedEvent struct {
	RoomID     string    `json:"room_id"`
	ShareToken string    `json:"share_token"`
	Title      string    `json:"title"`
	CreatedBy  string    `json:"created_by"`
	Timestamp  time.Time `json:"timestamp"`
}

// RoomDeactivatedEvent is emitted when a room's active flag is cleared.
type RoomDeactivatedEvent struct {
	RoomID    string    `json:"room_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the share domain.
var (
	MessageCommittedV1 = helper.EventDefinition[MessageCommittedEvent](
		"relay",
		"MessageCommitted",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"directory",
		"RoomCreated",
		"v1",
	)

	RoomDeactivatedV1 = helper.EventDefinition[RoomDeactivatedEvent](
		"directory",
		"RoomDeactivated",
		"v1",
	)
)
