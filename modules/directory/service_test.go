package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/docshare/domain/share"
)

// fakeStore keeps rooms in memory with the same resolve semantics as
// the database layer.
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]*share.Room
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]*share.Room)}
}

func (s *fakeStore) Create(_ context.Context, room *share.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *fakeStore) FindByToken(_ context.Context, token string) (*share.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.ShareToken == token && room.Active {
			cp := *room
			return &cp, nil
		}
	}
	return nil, share.ErrNotFound
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*share.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, share.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *fakeStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return share.ErrNotFound
	}
	room.Active = active
	return nil
}

// fakePublisher records committed messages and closed rooms.
type fakePublisher struct {
	mu        sync.Mutex
	published []share.Message
	closed    []string
	nextID    int64
}

func (p *fakePublisher) Publish(_ context.Context, msg share.Message) (*share.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	msg.ID = p.nextID
	msg.CreatedAt = time.Now().UTC()
	p.published = append(p.published, msg)
	return &msg, nil
}

func (p *fakePublisher) CloseRoom(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, roomID)
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakePublisher) {
	t.Helper()
	st := newFakeStore()
	pub := &fakePublisher{}
	svc, err := NewService(st, pub, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, st, pub
}

func TestService_CreateAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	room, err := svc.Create(ctx, "user-1", "Design Docs", "Welcome to the room")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if room.ShareToken == "" {
		t.Fatal("Create() minted no share token")
	}
	if !room.Active {
		t.Error("Create() room not active")
	}

	resolved, err := svc.Resolve(ctx, room.ShareToken)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ID != room.ID {
		t.Errorf("Resolve() id = %q, want %q", resolved.ID, room.ID)
	}

	// The creation notice is the room's first committed message, the
	// welcome text its second; both come from the system, not a user.
	if len(pub.published) != 2 {
		t.Fatalf("Create() published %d messages, want 2", len(pub.published))
	}
	for i, msg := range pub.published {
		if msg.Kind != share.KindSystem {
			t.Errorf("message %d kind = %q, want %q", i, msg.Kind, share.KindSystem)
		}
		if !msg.System() {
			t.Errorf("message %d carries a sender id", i)
		}
	}
	if pub.published[0].Content == "" {
		t.Error("creation notice is empty")
	}
	if pub.published[1].Content != "Welcome to the room" {
		t.Errorf("welcome content = %q", pub.published[1].Content)
	}
}

func TestService_CreateWithoutWelcomeStillAnnounces(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	room, err := svc.Create(ctx, "user-1", "Quiet Room", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("Create() published %d messages, want 1", len(pub.published))
	}
	notice := pub.published[0]
	if notice.RoomID != room.ID || notice.Kind != share.KindSystem || !notice.System() {
		t.Errorf("creation notice = %+v", notice)
	}
	if notice.Content == "" {
		t.Error("creation notice is empty")
	}
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	tests := []struct {
		name    string
		actor   string
		title   string
		wantErr error
	}{
		{name: "anonymous actor", actor: "", title: "Docs", wantErr: share.ErrNotPermitted},
		{name: "blank title", actor: "user-1", title: "  ", wantErr: share.ErrTitleInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.actor, tt.title, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_CreateTokensAreUnique(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room, err := svc.Create(ctx, "user-1", "Room", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[room.ShareToken] {
			t.Fatalf("duplicate share token %q", room.ShareToken)
		}
		seen[room.ShareToken] = true
	}
}

func TestService_ResolveUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, token := range []string{"", "no-such-token"} {
		if _, err := svc.Resolve(context.Background(), token); !errors.Is(err, share.ErrNotFound) {
			t.Errorf("Resolve(%q) error = %v, want ErrNotFound", token, err)
		}
	}
}

func TestService_Deactivate(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newTestService(t)

	room, err := svc.Create(ctx, "user-1", "Docs", "hi")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("non-creator is rejected", func(t *testing.T) {
		if err := svc.Deactivate(ctx, "user-2", room.ID); !errors.Is(err, share.ErrNotPermitted) {
			t.Errorf("Deactivate() error = %v, want ErrNotPermitted", err)
		}
	})

	t.Run("creator closes the room", func(t *testing.T) {
		if err := svc.Deactivate(ctx, "user-1", room.ID); err != nil {
			t.Fatalf("Deactivate() error = %v", err)
		}

		// The token no longer resolves.
		if _, err := svc.Resolve(ctx, room.ShareToken); !errors.Is(err, share.ErrNotFound) {
			t.Errorf("Resolve() after deactivate error = %v, want ErrNotFound", err)
		}

		// The closing notice was committed while the room was still
		// active, then subscriptions were detached.
		last := pub.published[len(pub.published)-1]
		if last.Kind != share.KindSystem || last.RoomID != room.ID {
			t.Errorf("closing notice = %+v", last)
		}
		if len(pub.closed) != 1 || pub.closed[0] != room.ID {
			t.Errorf("CloseRoom calls = %v, want [%s]", pub.closed, room.ID)
		}
	})

	t.Run("double deactivate", func(t *testing.T) {
		if err := svc.Deactivate(ctx, "user-1", room.ID); !errors.Is(err, share.ErrRoomInactive) {
			t.Errorf("Deactivate() error = %v, want ErrRoomInactive", err)
		}
	})
}
