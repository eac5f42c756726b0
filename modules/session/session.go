package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/docshare/domain/share"
)

// Reconciliation tuning. An echo arriving within echoWindow of a
// pending send with the same sender and content is taken as the server
// copy of that send. A pending entry older than pendingExpiry is
// treated as failed and surfaced for retry.
const (
	echoWindow    = time.Second
	pendingExpiry = 5 * time.Second
)

// Resubscribe backoff bounds. After maxResyncFailures consecutive
// failed resyncs the session gives up and reports connection loss.
const (
	backoffMin        = 250 * time.Millisecond
	backoffMax        = 4 * time.Second
	maxResyncFailures = 5
)

// ErrConnectionLost is reported by Err after the session exhausted its
// resubscribe attempts.
var ErrConnectionLost = errors.New("session connection lost")

// Publisher submits messages for commitment.
type Publisher interface {
	Publish(ctx context.Context, msg share.Message) (*share.Message, error)
}

// Historian reads committed history.
type Historian interface {
	History(ctx context.Context, roomID string) ([]share.Message, error)
	HistorySince(ctx context.Context, roomID string, afterID int64) ([]share.Message, error)
}

// Stream is a live feed of committed messages. The channel closes when
// the feed drops; the session then reconciles through history.
type Stream interface {
	Messages() <-chan share.Message
	Close()
}

// Entry is one row of the session's view. A pending entry is an
// optimistic local send that has not been confirmed by the server yet;
// its Message carries no id.
type Entry struct {
	Message share.Message `json:"message"`
	Pending bool          `json:"pending"`
	Failed  bool          `json:"failed"`
	LocalID string        `json:"local_id,omitempty"`
}

type pendingSend struct {
	localID string
	content string
	sentAt  time.Time
	failed  bool
}

// Session maintains one client's consistent, duplicate-free view of a
// room. It merges three sources of the same truth: bulk history, the
// live stream, and the client's own optimistic sends, deduplicating by
// server id and reconciling echoes of its own messages.
type Session struct {
	roomID   string
	senderID string

	publisher Publisher
	history   Historian
	subscribe func(roomID string) Stream

	now func() time.Time

	mu      sync.Mutex
	view    []share.Message
	seen    map[int64]struct{}
	pending []*pendingSend
	lastID  int64
	closed  bool
	err     error

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a session for one sender in one room. subscribe is called
// for the initial attachment and again after every stream drop.
func New(roomID, senderID string, publisher Publisher, history Historian, subscribe func(roomID string) Stream) *Session {
	return &Session{
		roomID:    roomID,
		senderID:  senderID,
		publisher: publisher,
		history:   history,
		subscribe: subscribe,
		now:       time.Now,
		seen:      make(map[int64]struct{}),
	}
}

// Open subscribes to the live stream, loads history and starts the
// consume loop. Subscribing before the history read means every commit
// lands in at least one of the two; duplicates across the overlap are
// collapsed by id.
func (s *Session) Open(ctx context.Context) error {
	stream := s.subscribe(s.roomID)

	msgs, err := s.history.History(ctx, s.roomID)
	if err != nil {
		stream.Close()
		return fmt.Errorf("failed to load history: %w", err)
	}

	s.mu.Lock()
	for _, msg := range msgs {
		s.ingestLocked(msg)
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.consume(runCtx, stream)
	return nil
}

// Close stops the consume loop and detaches from the relay.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Send submits content optimistically: the entry appears in the view
// immediately with a local id, and is replaced by the server copy when
// either the publish ack or the stream echo arrives, whichever comes
// first. The returned local id lets the caller track the entry.
func (s *Session) Send(ctx context.Context, content string) (string, error) {
	if err := share.ValidateContent(content); err != nil {
		return "", err
	}

	p := &pendingSend{
		localID: uuid.New().String(),
		content: content,
		sentAt:  s.now(),
	}
	s.mu.Lock()
	s.pending = append(s.pending, p)
	s.mu.Unlock()

	committed, err := s.publisher.Publish(ctx, share.Message{
		RoomID:   s.roomID,
		SenderID: &s.senderID,
		Content:  content,
		Kind:     share.KindText,
	})
	if err != nil {
		s.mu.Lock()
		p.failed = true
		s.mu.Unlock()
		return p.localID, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	// The stream echo may have already confirmed and removed this
	// entry; ingestLocked is idempotent by id either way.
	s.removePendingLocked(p.localID)
	s.ingestLocked(*committed)
	s.mu.Unlock()
	return p.localID, nil
}

// Resync pulls everything committed after the last message this
// session has seen and merges it in. Used after a stream drop and safe
// to call at any time.
func (s *Session) Resync(ctx context.Context) error {
	s.mu.Lock()
	after := s.lastID
	s.mu.Unlock()

	msgs, err := s.history.HistorySince(ctx, s.roomID, after)
	if err != nil {
		return fmt.Errorf("failed to resync: %w", err)
	}

	s.mu.Lock()
	for _, msg := range msgs {
		s.ingestLocked(msg)
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current view: confirmed messages in commit
// order followed by still-pending optimistic sends. A pending entry
// past the expiry is reported failed once and then dropped from the
// set; if its commit did go through, the echo arrives as an ordinary
// message.
func (s *Session) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Entry, 0, len(s.view)+len(s.pending))
	for _, msg := range s.view {
		out = append(out, Entry{Message: msg})
	}
	keep := s.pending[:0]
	for _, p := range s.pending {
		expired := now.Sub(p.sentAt) > pendingExpiry
		out = append(out, Entry{
			Message: share.Message{
				RoomID:    s.roomID,
				SenderID:  &s.senderID,
				Content:   p.content,
				Kind:      share.KindText,
				CreatedAt: p.sentAt,
			},
			Pending: true,
			Failed:  p.failed || expired,
			LocalID: p.localID,
		})
		if !expired {
			keep = append(keep, p)
		}
	}
	s.pending = keep
	return out
}

// Err reports why the session stopped, if it did. ErrConnectionLost
// means the live feed could not be restored and the caller should
// reopen.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastID returns the highest server id the session has merged.
func (s *Session) LastID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Ingest merges one committed message into the view. Exposed for
// callers that pump the stream themselves.
func (s *Session) Ingest(msg share.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingestLocked(msg)
}

// ingestLocked is the single merge point. Duplicate ids are dropped,
// echoes of the session's own sends retire the matching pending entry,
// and the view stays in commit order.
func (s *Session) ingestLocked(msg share.Message) {
	if msg.ID != 0 {
		if _, dup := s.seen[msg.ID]; dup {
			return
		}
		s.seen[msg.ID] = struct{}{}
		if msg.ID > s.lastID {
			s.lastID = msg.ID
		}
	}

	if msg.SenderID != nil && *msg.SenderID == s.senderID {
		s.reconcileEchoLocked(msg)
	}

	// Commit order and arrival order agree on the stream, but a resync
	// can interleave with live delivery, so insert by order not append.
	i := len(s.view)
	for i > 0 && msg.Before(&s.view[i-1]) {
		i--
	}
	s.view = append(s.view, share.Message{})
	copy(s.view[i+1:], s.view[i:])
	s.view[i] = msg
}

// reconcileEchoLocked matches an echoed own-message against pending
// sends: same content, sent within the echo window. Server id is the
// primary key for dedup; this heuristic only decides which optimistic
// entry the echo retires.
func (s *Session) reconcileEchoLocked(msg share.Message) {
	for idx, p := range s.pending {
		if p.content != msg.Content {
			continue
		}
		if msg.CreatedAt.Sub(p.sentAt) > echoWindow || p.sentAt.Sub(msg.CreatedAt) > echoWindow {
			continue
		}
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		return
	}
}

func (s *Session) removePendingLocked(localID string) {
	for idx, p := range s.pending {
		if p.localID == localID {
			s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
			return
		}
	}
}

// consume pumps the live stream into the view. When the stream closes
// under it (slow-subscriber drop, room shutdown, relay restart) it
// resyncs through history and resubscribes with bounded backoff.
func (s *Session) consume(ctx context.Context, stream Stream) {
	defer close(s.done)
	defer func() {
		if stream != nil {
			stream.Close()
		}
	}()

	backoff := backoffMin
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream.Messages():
			if ok {
				s.Ingest(msg)
				backoff = backoffMin
				continue
			}

			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}

			log.Printf("[session] stream dropped for room %s, resyncing", s.roomID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < backoffMax {
				backoff *= 2
			}

			stream = s.subscribe(s.roomID)
			if err := s.Resync(ctx); err != nil {
				failures++
				log.Printf("[session] resync failed for room %s (%d/%d): %v",
					s.roomID, failures, maxResyncFailures, err)
				if failures >= maxResyncFailures {
					s.mu.Lock()
					s.err = ErrConnectionLost
					s.mu.Unlock()
					return
				}
				// Drop the fresh stream so the next iteration takes
				// the reconnect path again instead of waiting for
				// another failure.
				stream.Close()
				continue
			}
			failures = 0
		}
	}
}
