package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/example/docshare/domain/share"
)

// Presence here is an approximation: a user is "present" if they sent
// a message inside the trailing window. Nobody is tracked on reads or
// connections, so lurkers are invisible and recent leavers linger
// until their last message ages out.
const (
	// DefaultWindow is the trailing activity window.
	DefaultWindow = 24 * time.Hour

	// cacheTTL bounds how stale a cached roster may be.
	cacheTTL = 30 * time.Second
)

// ActivityStore aggregates sender activity from committed messages.
type ActivityStore interface {
	RecentSenders(ctx context.Context, roomID string, window time.Duration) ([]share.SenderActivity, error)
}

// Service answers "who was recently active in this room". Results are
// cached in Redis with a short TTL; concurrent misses for the same
// room collapse into a single store query.
type Service struct {
	store  ActivityStore
	cache  *redis.Client
	window time.Duration
	group  singleflight.Group
}

// NewService builds the presence service. cache may be nil, in which
// case every read goes to the store.
func NewService(store ActivityStore, cache *redis.Client, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{store: store, cache: cache, window: window}
}

func cacheKey(roomID string) string {
	return "presence:room:" + roomID
}

// RecentSenders returns the room's recently active senders, newest
// first. Cache failures degrade to the store; they never fail the read.
func (s *Service) RecentSenders(ctx context.Context, roomID string) ([]share.SenderActivity, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, cacheKey(roomID)).Bytes()
		if err == nil {
			var cached []share.SenderActivity
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
			slog.Warn("Discarding corrupt presence cache entry", "roomID", roomID)
		} else if err != redis.Nil {
			slog.Warn("Presence cache read failed", "roomID", roomID, "error", err)
		}
	}

	v, err, _ := s.group.Do(roomID, func() (any, error) {
		senders, err := s.store.RecentSenders(ctx, roomID, s.window)
		if err != nil {
			return nil, fmt.Errorf("failed to load recent senders: %w", err)
		}
		s.fill(ctx, roomID, senders)
		return senders, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]share.SenderActivity), nil
}

// fill writes the roster back to the cache, best effort.
func (s *Service) fill(ctx context.Context, roomID string, senders []share.SenderActivity) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(senders)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(roomID), data, cacheTTL).Err(); err != nil {
		slog.Warn("Presence cache write failed", "roomID", roomID, "error", err)
	}
}

// Invalidate drops the cached roster for a room. Called when a new
// message commits so the next read reflects the new sender promptly.
func (s *Service) Invalidate(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(roomID)).Err(); err != nil {
		slog.Warn("Presence cache invalidation failed", "roomID", roomID, "error", err)
	}
}

// Window returns the trailing window in use.
func (s *Service) Window() time.Duration {
	return s.window
}
