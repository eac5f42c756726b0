package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/docshare/domain/share"
)

// MessageRepository provides access to message storage. Messages are
// insert-only; ids are assigned by SQLite's autoincrement on insert, which
// makes them unique and strictly increasing in commit order.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert persists a message and fills in its server-assigned id and
// creation timestamp.
func (r *MessageRepository) Insert(ctx context.Context, msg *share.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// History returns all messages of a room in ascending creation order,
// ties broken by id. This is the bulk read clients use on room entry and
// after a subscription drop; live delivery happens on the relay stream.
func (r *MessageRepository) History(ctx context.Context, roomID string) ([]share.Message, error) {
	var msgs []share.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return msgs, nil
}

// HistorySince returns messages of a room with id greater than afterID,
// in ascending order.
func (r *MessageRepository) HistorySince(ctx context.Context, roomID string, afterID int64) ([]share.Message, error) {
	var msgs []share.Message
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND id > ?", roomID, afterID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return msgs, nil
}

// RecentSenders aggregates the distinct non-system senders of a room whose
// last message falls inside the trailing window, newest first. This backs
// the "active users" display; it is a recency approximation, not presence.
func (r *MessageRepository) RecentSenders(ctx context.Context, roomID string, window time.Duration) ([]share.SenderActivity, error) {
	since := time.Now().UTC().Add(-window)

	var rows []share.SenderActivity
	err := r.db.WithContext(ctx).
		Model(&share.Message{}).
		Select("sender_id, MAX(created_at) AS last_seen").
		Where("room_id = ? AND sender_id IS NOT NULL AND created_at >= ?", roomID, since).
		Group("sender_id").
		Order("last_seen DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recent senders: %w", err)
	}
	return rows, nil
}
