package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]Record
}

func newMemStore() *memStore { return &memStore{rows: map[string]Record{}} }

func (m *memStore) Get(_ context.Context, channelID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[channelID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) PutIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rows[rec.ChannelID]; ok {
		return existing, false, nil
	}
	m.rows[rec.ChannelID] = rec
	return rec, true, nil
}

type fakePlatform struct {
	channels map[string]Channel
	creates  atomic.Int64
	fail     error
}

func (f *fakePlatform) ChannelInfo(_ context.Context, channelID string) (Channel, error) {
	if ch, ok := f.channels[channelID]; ok {
		return ch, nil
	}
	return Channel{ID: channelID}, nil
}

func (f *fakePlatform) CreateIdentity(_ context.Context, channelID string) (Record, error) {
	if f.fail != nil {
		return Record{}, f.fail
	}
	n := f.creates.Add(1)
	return Record{
		ChannelID:    channelID,
		WebhookID:    fmt.Sprintf("wh-%d", n),
		WebhookToken: "tok",
	}, nil
}

func TestGetOrCreateCreatesOnce(t *testing.T) {
	store := newMemStore()
	platform := &fakePlatform{}
	m := NewManager(nil, store, platform)

	rec, threadID, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", rec.ChannelID)
	assert.Equal(t, "", threadID)

	// second call is served from the cache
	again, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.Equal(t, int64(1), platform.creates.Load())
}

func TestGetOrCreateThreadRoutesThroughParent(t *testing.T) {
	store := newMemStore()
	platform := &fakePlatform{channels: map[string]Channel{
		"thread-9": {ID: "thread-9", ParentID: "chan-1", Thread: true},
	}}
	m := NewManager(nil, store, platform)

	rec, threadID, err := m.GetOrCreate(context.Background(), "thread-9")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", rec.ChannelID)
	assert.Equal(t, "thread-9", threadID)

	// the parent channel reuses the identity the thread created
	parentRec, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, parentRec)
	assert.Equal(t, int64(1), platform.creates.Load())
}

func TestGetOrCreateConcurrentFirstTouch(t *testing.T) {
	store := newMemStore()
	platform := &fakePlatform{}
	m := NewManager(nil, store, platform)

	var wg sync.WaitGroup
	recs := make([]Record, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _, err := m.GetOrCreate(context.Background(), "chan-1")
			if err != nil {
				t.Error(err)
				return
			}
			recs[i] = rec
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), platform.creates.Load(), "concurrent first touches must create one identity")
	for _, rec := range recs {
		assert.Equal(t, recs[0], rec)
	}
}

func TestGetOrCreatePermissionDeniedNotCached(t *testing.T) {
	store := newMemStore()
	platform := &fakePlatform{fail: ErrPermissionDenied}
	m := NewManager(nil, store, platform)

	_, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.ErrorIs(t, err, ErrPermissionDenied)

	// once permissions are fixed, creation succeeds
	platform.fail = nil
	rec, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", rec.ChannelID)
}

func TestGetOrCreateLosesStoreRace(t *testing.T) {
	store := newMemStore()
	// another process already created the identity for this channel
	store.rows["chan-1"] = Record{ChannelID: "chan-1", WebhookID: "winner", WebhookToken: "tok"}
	platform := &fakePlatform{}
	m := NewManager(nil, store, platform)

	rec, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", rec.WebhookID)
	assert.Equal(t, int64(0), platform.creates.Load())
}

func TestInvalidateForcesReRead(t *testing.T) {
	store := newMemStore()
	platform := &fakePlatform{}
	m := NewManager(nil, store, platform)

	first, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)

	// rotate the stored identity behind the manager's back
	store.mu.Lock()
	store.rows["chan-1"] = Record{ChannelID: "chan-1", WebhookID: "rotated", WebhookToken: "tok2"}
	store.mu.Unlock()

	m.Invalidate("chan-1")
	second, _, err := m.GetOrCreate(context.Background(), "chan-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.WebhookID, second.WebhookID)
	assert.Equal(t, "rotated", second.WebhookID)
}

func TestPermissionDeniedIsComparable(t *testing.T) {
	wrapped := fmt.Errorf("create webhook: %w", ErrPermissionDenied)
	assert.True(t, errors.Is(wrapped, ErrPermissionDenied))
}
