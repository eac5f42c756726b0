package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/docshare/domain/share"
)

// fakeConn records written frames and flags any two writes that
// overlap in time, which a real connection would reject.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	inWrite    int32
	overlapped int32
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if !atomic.CompareAndSwapInt32(&c.inWrite, 0, 1) {
		atomic.StoreInt32(&c.overlapped, 1)
	}
	// Keep the write window open long enough for a racing writer to
	// collide with it.
	time.Sleep(time.Millisecond)
	buf := make([]byte, len(data))
	copy(buf, data)
	c.mu.Lock()
	c.frames = append(c.frames, buf)
	c.mu.Unlock()
	atomic.StoreInt32(&c.inWrite, 0)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClient_ConcurrentWritersSerialized(t *testing.T) {
	conn := &fakeConn{}
	client := &Client{ID: "c1", RoomID: "room-1", Conn: conn}

	h := runHub(t)
	h.Register(client)
	waitFor(t, "registration", func() bool { return h.ClientCount() == 1 })

	// The hub loop and the connection's reader goroutine write to the
	// same client at the same time, as they do when acks race
	// broadcasts.
	const perWriter = 25
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			h.BroadcastMessage(share.Message{ID: int64(i + 1), RoomID: "room-1", Content: "hi"})
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perWriter; i++ {
			if err := client.WriteJSON(map[string]any{"type": "ack", "seq": i}); err != nil {
				t.Errorf("WriteJSON() error = %v", err)
				return
			}
		}
	}()
	wg.Wait()

	waitFor(t, "all frames", func() bool { return conn.frameCount() == 2*perWriter })
	if atomic.LoadInt32(&conn.overlapped) != 0 {
		t.Fatal("two writes reached the connection concurrently")
	}
}

func TestHub_BroadcastReachesOnlyTheRoom(t *testing.T) {
	h := runHub(t)

	inRoom := &fakeConn{}
	alsoIn := &fakeConn{}
	elsewhere := &fakeConn{}
	h.Register(&Client{ID: "c1", RoomID: "room-1", Conn: inRoom})
	h.Register(&Client{ID: "c2", RoomID: "room-1", Conn: alsoIn})
	h.Register(&Client{ID: "c3", RoomID: "room-2", Conn: elsewhere})
	waitFor(t, "registrations", func() bool { return h.ClientCount() == 3 })

	h.BroadcastMessage(share.Message{ID: 1, RoomID: "room-1", Content: "hello"})

	waitFor(t, "room delivery", func() bool {
		return inRoom.frameCount() == 1 && alsoIn.frameCount() == 1
	})
	if elsewhere.frameCount() != 0 {
		t.Errorf("client in another room received %d frames, want 0", elsewhere.frameCount())
	}

	var frame Frame
	inRoom.mu.Lock()
	err := json.Unmarshal(inRoom.frames[0], &frame)
	inRoom.mu.Unlock()
	if err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if frame.Type != FrameMessage || frame.Message == nil || frame.Message.ID != 1 {
		t.Errorf("frame = %+v, want message frame carrying id 1", frame)
	}
}

func TestHub_CloseRoomEvictsClients(t *testing.T) {
	h := runHub(t)

	conns := make([]*fakeConn, 3)
	for i := range conns {
		conns[i] = &fakeConn{}
		h.Register(&Client{ID: fmt.Sprintf("c%d", i), RoomID: "room-1", Conn: conns[i]})
	}
	waitFor(t, "registrations", func() bool { return h.RoomClientCount("room-1") == 3 })

	h.CloseRoom("room-1", "room deactivated")

	if got := h.RoomClientCount("room-1"); got != 0 {
		t.Errorf("RoomClientCount() = %d after CloseRoom, want 0", got)
	}
	for i, conn := range conns {
		if !conn.isClosed() {
			t.Errorf("conn %d left open after CloseRoom", i)
		}
		if conn.frameCount() != 1 {
			t.Fatalf("conn %d received %d frames, want 1", i, conn.frameCount())
		}
		var frame Frame
		conn.mu.Lock()
		err := json.Unmarshal(conn.frames[0], &frame)
		conn.mu.Unlock()
		if err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		if frame.Type != FrameRoomClosed || frame.Reason != "room deactivated" {
			t.Errorf("frame = %+v, want room_closed with reason", frame)
		}
	}
}

func TestHub_UnregisterDetaches(t *testing.T) {
	h := runHub(t)

	client := &Client{ID: "c1", RoomID: "room-1", Conn: &fakeConn{}}
	h.Register(client)
	waitFor(t, "registration", func() bool { return h.ClientCount() == 1 })

	h.Unregister(client)
	waitFor(t, "detach", func() bool { return h.ClientCount() == 0 })

	if got := h.RoomClientCount("room-1"); got != 0 {
		t.Errorf("RoomClientCount() = %d after unregister, want 0", got)
	}
}
