package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/example/docshare/domain/share"
)

// RoomRepository provides access to share room storage.
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create persists a new room.
func (r *RoomRepository) Create(ctx context.Context, room *share.Room) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// FindByToken resolves a share token to its room, constrained to active
// rooms. An unknown or inactive token yields share.ErrNotFound; any other
// error is a transient store failure and must not be treated as NotFound.
func (r *RoomRepository) FindByToken(ctx context.Context, token string) (*share.Room, error) {
	var room share.Room
	err := r.db.WithContext(ctx).
		First(&room, "share_token = ? AND active = ?", token, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, share.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}
	return &room, nil
}

// FindByID retrieves a room by its id regardless of active state.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*share.Room, error) {
	var room share.Room
	if err := r.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, share.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

// SetActive flips the room's active flag, the only mutation a room ever sees.
func (r *RoomRepository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&share.Room{}).
		Where("id = ?", id).
		Update("active", active)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	if result.RowsAffected == 0 {
		return share.ErrNotFound
	}
	return nil
}
