package relay

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/example/docshare/domain/share"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind the commit stream is dropped rather than
// allowed to stall delivery for everyone else.
const subscriberBuffer = 64

// MessageInserter persists messages and assigns their server ids.
type MessageInserter interface {
	Insert(ctx context.Context, msg *share.Message) error
}

// RoomFinder checks that a room exists and is active before a publish.
type RoomFinder interface {
	FindByID(ctx context.Context, id string) (*share.Room, error)
}

// Committed is invoked for every successful commit while the room's
// commit lock is still held, so invocation order equals commit order.
// It must return quickly and must not re-enter the broker. The relay
// module uses it to publish events on the bus.
type Committed func(msg share.Message)

// Subscription is a live feed of a single room's committed messages.
// Messages arrive on C in commit order. The relay closes C when the
// subscription is dropped for falling behind or when the room shuts
// down; the subscriber must then reconcile via history.
type Subscription struct {
	C chan share.Message

	roomID string
	cancel func()
	once   sync.Once
}

// Messages returns the receive side of the subscription stream.
func (s *Subscription) Messages() <-chan share.Message { return s.C }

// Close detaches the subscription from the relay. Safe to call more
// than once and concurrently with delivery.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// RoomID returns the room this subscription is attached to.
func (s *Subscription) RoomID() string { return s.roomID }

// room holds the per-room fanout state. mu is the commit lock: inserts,
// subscriber registration and fanout all happen under it, so every
// subscriber observes each message exactly once, either in the history
// it loaded before subscribing or on the stream, never lost between the
// two.
type room struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Broker accepts message submissions, persists them and fans them out
// to the room's current subscribers in commit order.
type Broker struct {
	msgs      MessageInserter
	rooms     RoomFinder
	committed Committed

	mu    sync.Mutex
	state map[string]*room
}

// NewBroker creates a broker backed by the given stores. committed may
// be nil.
func NewBroker(msgs MessageInserter, rooms RoomFinder, committed Committed) *Broker {
	return &Broker{
		msgs:      msgs,
		rooms:     rooms,
		committed: committed,
		state:     make(map[string]*room),
	}
}

func (b *Broker) room(roomID string) *room {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.state[roomID]
	if !ok {
		r = &room{subs: make(map[*Subscription]struct{})}
		b.state[roomID] = r
	}
	return r
}

// Publish validates, persists and fans out a message. On success the
// returned message carries its server-assigned id and timestamp. The
// message is durable before any subscriber sees it; rejection leaves no
// trace.
func (b *Broker) Publish(ctx context.Context, msg share.Message) (*share.Message, error) {
	if err := share.ValidateContent(msg.Content); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		msg.Kind = share.KindText
	}

	rm, err := b.rooms.FindByID(ctx, msg.RoomID)
	if err != nil {
		return nil, err
	}
	if !rm.Active {
		return nil, share.ErrRoomInactive
	}

	r := b.room(msg.RoomID)
	r.mu.Lock()
	if err := b.msgs.Insert(ctx, &msg); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	b.fanout(r, msg)
	// The callback stays under the lock so concurrent publishes cannot
	// reorder the event stream against the commit order.
	if b.committed != nil {
		b.committed(msg)
	}
	r.mu.Unlock()

	return &msg, nil
}

// fanout enqueues msg to every subscriber of r. Caller holds r.mu. A
// subscriber whose buffer is full is dropped on the spot; it will catch
// up through history when it reconnects.
func (b *Broker) fanout(r *room, msg share.Message) {
	for sub := range r.subs {
		select {
		case sub.C <- msg:
		default:
			log.Printf("[relay] dropping slow subscriber in room %s", msg.RoomID)
			delete(r.subs, sub)
			close(sub.C)
		}
	}
}

// Subscribe attaches a live feed to a room. Registration happens under
// the room's commit lock: every message committed after the returned
// subscription exists is guaranteed to be delivered on it, so a client
// that loads history after subscribing sees each message at least once.
func (b *Broker) Subscribe(roomID string) *Subscription {
	r := b.room(roomID)

	sub := &Subscription{
		C:      make(chan share.Message, subscriberBuffer),
		roomID: roomID,
	}
	sub.cancel = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[sub]; ok {
			delete(r.subs, sub)
			close(sub.C)
		}
	}

	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

// CloseRoom detaches every subscriber of a room, closing their
// channels. Called when a room is deactivated.
func (b *Broker) CloseRoom(roomID string) {
	r := b.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs {
		delete(r.subs, sub)
		close(sub.C)
	}
}

// SubscriberCount reports the live subscribers of a room.
func (b *Broker) SubscriberCount(roomID string) int {
	r := b.room(roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Shutdown detaches all subscribers of all rooms.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	rooms := make([]*room, 0, len(b.state))
	for _, r := range b.state {
		rooms = append(rooms, r)
	}
	b.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		for sub := range r.subs {
			delete(r.subs, sub)
			close(sub.C)
		}
		r.mu.Unlock()
	}
}
