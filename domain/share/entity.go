// Package share defines the core entities of the document-sharing domain:
// share rooms and the chat messages exchanged inside them.
package share

import "time"

// MessageKind is the rendering hint attached to every message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindDocument MessageKind = "document"
	KindSystem   MessageKind = "system"
)

// Room is a tokenized chat context created by a share action.
// Rooms are never mutated after creation except for the Active flag.
type Room struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	ShareToken string    `gorm:"uniqueIndex;size:64;not null" json:"share_token"`
	Title      string    `gorm:"size:200;not null" json:"title"`
	Welcome    string    `gorm:"size:1000" json:"welcome"`
	Active     bool      `gorm:"default:true;index" json:"active"`
	CreatedBy  string    `gorm:"size:36;not null" json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ShareLink renders the public link for the room.
func (r *Room) ShareLink(baseURL string) string {
	return baseURL + "/share/" + r.ShareToken
}

// Message is one unit of communication within a Room. The ID is assigned
// by the store on insert and is strictly increasing, so it doubles as the
// ordering and dedup key. A nil SenderID marks a system-generated message.
// Messages are immutable once created.
type Message struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string      `gorm:"size:36;not null;index:idx_room_created" json:"room_id"`
	SenderID  *string     `gorm:"size:36" json:"sender_id"`
	Content   string      `gorm:"size:5000;not null" json:"content"`
	Kind      MessageKind `gorm:"size:16;not null;default:text" json:"kind"`
	CreatedAt time.Time   `gorm:"index:idx_room_created" json:"created_at"`
}

// System reports whether the message was generated by the platform
// rather than a user.
func (m *Message) System() bool {
	return m.SenderID == nil
}

// Before reports whether m sorts before other in a room's ordered view.
// Creation time orders first; the store-assigned id breaks ties.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// SenderActivity is one entry of the recent-senders approximation:
// a sender and the timestamp of their most recent message.
type SenderActivity struct {
	SenderID string    `json:"sender_id"`
	LastSeen time.Time `json:"last_seen"`
}
