package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"

	"github.com/example/docshare/domain/share"
)

// tokenLength is the share token length. 16 characters of the nanoid
// standard alphabet keeps links short while making tokens infeasible
// to guess.
const tokenLength = 16

// RoomStore is the persistence the directory needs.
type RoomStore interface {
	Create(ctx context.Context, room *share.Room) error
	FindByToken(ctx context.Context, token string) (*share.Room, error)
	FindByID(ctx context.Context, id string) (*share.Room, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// Publisher commits messages to a room's stream. The directory uses it
// for the system notices that bracket a room's lifetime.
type Publisher interface {
	Publish(ctx context.Context, msg share.Message) (*share.Message, error)
	CloseRoom(roomID string)
}

// CreatePolicy decides whether an actor may create a room.
type CreatePolicy func(actorID string) error

// DeactivatePolicy decides whether an actor may deactivate a room.
type DeactivatePolicy func(actorID string, room *share.Room) error

// DefaultCreatePolicy lets any authenticated user create rooms.
func DefaultCreatePolicy(actorID string) error {
	if actorID == "" {
		return share.ErrNotPermitted
	}
	return nil
}

// DefaultDeactivatePolicy lets only the creator close a room.
func DefaultDeactivatePolicy(actorID string, room *share.Room) error {
	if actorID == "" || actorID != room.CreatedBy {
		return share.ErrNotPermitted
	}
	return nil
}

// Service implements the room directory: minting share tokens,
// resolving them and managing the active flag.
type Service struct {
	rooms     RoomStore
	publisher Publisher
	canCreate CreatePolicy
	canClose  DeactivatePolicy
	newToken  func() string
	onCreated func(room share.Room)
	onClosed  func(room share.Room, actorID string)
}

// NewService builds the directory service. onCreated and onClosed are
// optional lifecycle hooks the module uses to publish events.
func NewService(rooms RoomStore, publisher Publisher, canCreate CreatePolicy, canClose DeactivatePolicy, onCreated func(room share.Room), onClosed func(room share.Room, actorID string)) (*Service, error) {
	gen, err := nanoid.Standard(tokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to build token generator: %w", err)
	}
	if canCreate == nil {
		canCreate = DefaultCreatePolicy
	}
	if canClose == nil {
		canClose = DefaultDeactivatePolicy
	}
	return &Service{
		rooms:     rooms,
		publisher: publisher,
		canCreate: canCreate,
		canClose:  canClose,
		newToken:  gen,
		onCreated: onCreated,
		onClosed:  onClosed,
	}, nil
}

// Resolve maps a share token to its room. Only active rooms resolve;
// unknown and deactivated tokens are indistinguishable to the caller.
func (s *Service) Resolve(ctx context.Context, token string) (*share.Room, error) {
	if token == "" {
		return nil, share.ErrNotFound
	}
	return s.rooms.FindByToken(ctx, token)
}

// Create mints a new room with a fresh share token and posts its
// welcome notice as the first committed message.
func (s *Service) Create(ctx context.Context, actorID, title, welcome string) (*share.Room, error) {
	if err := s.canCreate(actorID); err != nil {
		return nil, err
	}
	if err := share.ValidateTitle(title); err != nil {
		return nil, err
	}
	if err := share.ValidateWelcome(welcome); err != nil {
		return nil, err
	}

	room := &share.Room{
		ID:         uuid.New().String(),
		ShareToken: s.newToken(),
		Title:      title,
		Welcome:    welcome,
		Active:     true,
		CreatedBy:  actorID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	// Every room opens with a creation notice; the welcome text, when
	// present, follows as a second system message. Both ride the relay
	// so they land in history and on live streams alike.
	if _, err := s.publisher.Publish(ctx, share.Message{
		RoomID:  room.ID,
		Content: fmt.Sprintf("Room %q is now open.", title),
		Kind:    share.KindSystem,
	}); err != nil {
		return nil, fmt.Errorf("failed to post creation notice: %w", err)
	}
	if welcome != "" {
		if _, err := s.publisher.Publish(ctx, share.Message{
			RoomID:  room.ID,
			Content: welcome,
			Kind:    share.KindSystem,
		}); err != nil {
			return nil, fmt.Errorf("failed to post welcome notice: %w", err)
		}
	}

	if s.onCreated != nil {
		s.onCreated(*room)
	}
	return room, nil
}

// Deactivate closes a room: a final system notice is committed while
// the room is still active, the active flag drops, and every live
// subscription is detached. The token stops resolving but history
// stays readable by id.
func (s *Service) Deactivate(ctx context.Context, actorID, roomID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return share.ErrRoomInactive
	}
	if err := s.canClose(actorID, room); err != nil {
		return err
	}

	if _, err := s.publisher.Publish(ctx, share.Message{
		RoomID:  roomID,
		Content: "This room has been closed.",
		Kind:    share.KindSystem,
	}); err != nil {
		return fmt.Errorf("failed to post closing notice: %w", err)
	}

	if err := s.rooms.SetActive(ctx, roomID, false); err != nil {
		return err
	}
	s.publisher.CloseRoom(roomID)

	if s.onClosed != nil {
		room.Active = false
		s.onClosed(*room, actorID)
	}
	return nil
}
