package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/docshare/domain/share"
	"github.com/example/docshare/modules/relay"
)

// fakeBackend plays both the publisher and the historian, committing
// messages with increasing ids the way the store does.
type fakeBackend struct {
	mu         sync.Mutex
	nextID     int64
	msgs       []share.Message
	beforeAck  func(committed share.Message)
	publishErr error
}

func (f *fakeBackend) Publish(_ context.Context, msg share.Message) (*share.Message, error) {
	f.mu.Lock()
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now().UTC()
	f.msgs = append(f.msgs, msg)
	hook := f.beforeAck
	err := f.publishErr
	f.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (f *fakeBackend) commit(senderID *string, content string) share.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := share.Message{
		ID:        f.nextID,
		RoomID:    "room-1",
		SenderID:  senderID,
		Content:   content,
		Kind:      share.KindText,
		CreatedAt: time.Now().UTC(),
	}
	f.msgs = append(f.msgs, msg)
	return msg
}

func (f *fakeBackend) History(_ context.Context, roomID string) ([]share.Message, error) {
	return f.HistorySince(context.Background(), roomID, 0)
}

func (f *fakeBackend) HistorySince(_ context.Context, roomID string, afterID int64) ([]share.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []share.Message
	for _, msg := range f.msgs {
		if msg.RoomID == roomID && msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func newTestSession(backend *fakeBackend) *Session {
	return New("room-1", "alice", backend, backend, nil)
}

func confirmedContents(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if !e.Pending {
			out = append(out, e.Message.Content)
		}
	}
	return out
}

func pendingCount(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if e.Pending {
			n++
		}
	}
	return n
}

func TestSession_SendAckThenEcho(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	localID, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if localID == "" {
		t.Fatal("Send() returned empty local id")
	}

	// The stream echo of the same commit arrives after the ack.
	s.Ingest(backend.msgs[0])

	entries := s.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Snapshot() has %d entries, want 1", len(entries))
	}
	if entries[0].Pending {
		t.Error("entry still pending after ack")
	}
	if entries[0].Message.ID == 0 {
		t.Error("entry carries no server id")
	}
}

func TestSession_EchoBeforeAck(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	// The stream echo lands before Publish returns.
	backend.beforeAck = func(committed share.Message) {
		s.Ingest(committed)
	}

	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	entries := s.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Snapshot() has %d entries, want 1", len(entries))
	}
	if entries[0].Pending {
		t.Error("entry still pending")
	}
}

func TestSession_DuplicateIngestIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	msg := backend.commit(nil, "notice")
	s.Ingest(msg)
	s.Ingest(msg)
	s.Ingest(msg)

	if entries := s.Snapshot(); len(entries) != 1 {
		t.Errorf("Snapshot() has %d entries after duplicate ingest, want 1", len(entries))
	}
}

func TestSession_EchoHeuristicIgnoresDifferentContent(t *testing.T) {
	backend := &fakeBackend{}
	backend.publishErr = errors.New("ack lost")
	s := newTestSession(backend)

	// The ack is lost, leaving a pending entry behind.
	if _, err := s.Send(context.Background(), "first"); err == nil {
		t.Fatal("Send() succeeded, want lost ack")
	}

	// An own message with different content (another device, say) must
	// not retire the pending entry.
	alice := "alice"
	other := backend.commit(&alice, "second")
	s.Ingest(other)

	entries := s.Snapshot()
	if got := pendingCount(entries); got != 1 {
		t.Fatalf("pending entries = %d, want 1", got)
	}
	if got := confirmedContents(entries); len(got) != 1 || got[0] != "second" {
		t.Errorf("confirmed contents = %v, want [second]", got)
	}
}

func TestSession_SameTextFromAnotherSenderStaysSeparate(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	s.Ingest(backend.msgs[0])

	// Bob sends the identical text at the same moment. It must appear
	// as a second message, never folded into alice's.
	bob := "bob"
	s.Ingest(backend.commit(&bob, "hello"))

	entries := s.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("Snapshot() has %d entries, want 2", len(entries))
	}
	if got := pendingCount(entries); got != 0 {
		t.Errorf("pending entries = %d, want 0", got)
	}
}

func TestSession_LostAckRetiredByEcho(t *testing.T) {
	backend := &fakeBackend{}
	backend.publishErr = errors.New("ack lost")
	s := newTestSession(backend)

	// The commit went through even though the ack was lost.
	if _, err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send() succeeded, want lost ack")
	}

	if got := pendingCount(s.Snapshot()); got != 1 {
		t.Fatalf("pending entries = %d before echo, want 1", got)
	}

	// The echo of the committed copy arrives and retires the pending
	// entry, so the message appears exactly once.
	s.Ingest(backend.msgs[0])

	entries := s.Snapshot()
	if got := pendingCount(entries); got != 0 {
		t.Errorf("pending entries = %d after echo, want 0", got)
	}
	if got := confirmedContents(entries); len(got) != 1 || got[0] != "hello" {
		t.Errorf("confirmed contents = %v, want [hello]", got)
	}
}

func TestSession_PendingExpiryFlagsFailure(t *testing.T) {
	backend := &fakeBackend{}
	backend.publishErr = errors.New("timeout")
	s := newTestSession(backend)

	base := time.Now().UTC()
	s.now = func() time.Time { return base }
	if _, err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("Send() succeeded, want error")
	}

	s.now = func() time.Time { return base.Add(pendingExpiry + time.Second) }
	entries := s.Snapshot()
	if len(entries) != 1 || !entries[0].Pending || !entries[0].Failed {
		t.Errorf("Snapshot() = %+v, want one failed pending entry", entries)
	}

	// The expired entry is surfaced once and then pruned, so the
	// pending set does not accumulate over the session's lifetime.
	if entries := s.Snapshot(); len(entries) != 0 {
		t.Errorf("Snapshot() after expiry = %+v, want empty", entries)
	}
}

func TestSession_SnapshotKeepsCommitOrder(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	bob := "bob"
	first := backend.commit(&bob, "one")
	second := backend.commit(&bob, "two")
	third := backend.commit(&bob, "three")

	// A resync can deliver older commits after newer ones.
	s.Ingest(third)
	s.Ingest(first)
	s.Ingest(second)

	got := confirmedContents(s.Snapshot())
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("confirmed contents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSession_ResyncMergesMissedMessages(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSession(backend)

	bob := "bob"
	seen := backend.commit(&bob, "seen")
	s.Ingest(seen)
	backend.commit(&bob, "missed-1")
	backend.commit(&bob, "missed-2")

	if err := s.Resync(context.Background()); err != nil {
		t.Fatalf("Resync() error = %v", err)
	}

	got := confirmedContents(s.Snapshot())
	want := []string{"seen", "missed-1", "missed-2"}
	if len(got) != len(want) {
		t.Fatalf("confirmed contents = %v, want %v", got, want)
	}
}

// relayStore adapts the fake backend for a real broker.
type relayStore struct {
	backend *fakeBackend
}

func (r *relayStore) Insert(_ context.Context, msg *share.Message) error {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()
	r.backend.nextID++
	msg.ID = r.backend.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.backend.msgs = append(r.backend.msgs, *msg)
	return nil
}

func (r *relayStore) FindByID(_ context.Context, id string) (*share.Room, error) {
	return &share.Room{ID: id, Active: true}, nil
}

func TestSession_LiveStreamEndToEnd(t *testing.T) {
	backend := &fakeBackend{}
	rs := &relayStore{backend: backend}
	broker := relay.NewBroker(rs, rs, nil)

	bob := "bob"
	if _, err := broker.Publish(context.Background(), share.Message{
		RoomID: "room-1", SenderID: &bob, Content: "before",
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	s := New("room-1", "alice", broker, backend, func(roomID string) Stream {
		return broker.Subscribe(roomID)
	})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := broker.Publish(context.Background(), share.Message{
		RoomID: "room-1", SenderID: &bob, Content: "after",
	}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := s.Send(context.Background(), "mine"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := []string{"before", "after", "mine"}
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries := s.Snapshot()
		got := confirmedContents(entries)
		if len(got) == len(want) && pendingCount(entries) == 0 {
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("confirmed contents = %v, want %v", got, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never converged: %v (pending %d), want %v",
				got, pendingCount(entries), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
