package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Manager hands out channel identities, creating them lazily. Threads never
// get their own identity; they route through the parent channel's identity
// with the thread id passed separately.
type Manager struct {
	store    Store
	platform Platform
	logger   *slog.Logger
	limiter  *rate.Limiter
	group    singleflight.Group

	mu    sync.RWMutex
	cache map[string]Record
}

func NewManager(log *slog.Logger, store Store, platform Platform) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    store,
		platform: platform,
		logger:   log.With(slog.String("service", "identity")),
		// identity creation hits a platform endpoint with its own rate limits
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		cache:   make(map[string]Record),
	}
}

// GetOrCreate returns the identity for channelID (or its parent, when the
// channel is a thread) plus the thread id to route through. Concurrent first
// touches of the same channel collapse into one creation; losers of a
// cross-process race detect and reuse the winner's record via the store.
func (m *Manager) GetOrCreate(ctx context.Context, channelID string) (Record, string, error) {
	ch, err := m.platform.ChannelInfo(ctx, channelID)
	if err != nil {
		return Record{}, "", fmt.Errorf("channel info: %w", err)
	}

	parentID := ch.ID
	threadID := ""
	if ch.Thread {
		parentID = ch.ParentID
		threadID = ch.ID
	}

	if rec, ok := m.cached(parentID); ok {
		return rec, threadID, nil
	}

	v, err, _ := m.group.Do(parentID, func() (any, error) {
		return m.resolve(ctx, parentID)
	})
	if err != nil {
		return Record{}, "", err
	}
	return v.(Record), threadID, nil
}

// Invalidate drops a cached identity, forcing a store re-read on next use.
func (m *Manager) Invalidate(channelID string) {
	m.mu.Lock()
	delete(m.cache, channelID)
	m.mu.Unlock()
}

func (m *Manager) resolve(ctx context.Context, parentID string) (Record, error) {
	if rec, ok := m.cached(parentID); ok {
		return rec, nil
	}

	rec, err := m.store.Get(ctx, parentID)
	if err == nil {
		m.remember(rec)
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, fmt.Errorf("identity lookup: %w", err)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return Record{}, err
	}
	created, err := m.platform.CreateIdentity(ctx, parentID)
	if err != nil {
		// nothing is cached on failure
		return Record{}, err
	}

	canonical, won, err := m.store.PutIfAbsent(ctx, created)
	if err != nil {
		return Record{}, fmt.Errorf("persist identity: %w", err)
	}
	if !won {
		m.logger.Warn("lost identity creation race, reusing stored identity",
			slog.String("channel_id", parentID),
			slog.String("discarded_webhook_id", created.WebhookID))
	}
	m.remember(canonical)
	return canonical, nil
}

func (m *Manager) cached(channelID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.cache[channelID]
	return rec, ok
}

func (m *Manager) remember(rec Record) {
	m.mu.Lock()
	m.cache[rec.ChannelID] = rec
	m.mu.Unlock()
}
