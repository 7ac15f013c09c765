package memory

import (
	"testing"
	"time"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(id domain.SessionID, key domain.StreamKey, status domain.SessionStatus) *domain.Session {
	return &domain.Session{
		ID:        id,
		Key:       key,
		OwnerID:   "owner",
		Status:    status,
		Source:    domain.SourceRelay,
		Mode:      domain.ModeMesh,
		CreatedAt: time.Now(),
	}
}

func TestSessionRegistry_RegisterAndGet(t *testing.T) {
	registry := NewSessionRegistry()

	require.NoError(t, registry.Register(newSession("sess_1", "key-a", domain.StatusPending)))

	byKey, ok := registry.Get("key-a")
	require.True(t, ok)
	assert.Equal(t, domain.SessionID("sess_1"), byKey.ID)

	byID, ok := registry.GetByID("sess_1")
	require.True(t, ok)
	assert.Equal(t, domain.StreamKey("key-a"), byID.Key)
}

func TestSessionRegistry_RejectsDuplicateActiveKey(t *testing.T) {
	registry := NewSessionRegistry()

	t.Run("pending blocks newcomer", func(t *testing.T) {
		require.NoError(t, registry.Register(newSession("sess_1", "key-a", domain.StatusPending)))
		err := registry.Register(newSession("sess_2", "key-a", domain.StatusPending))
		assert.ErrorIs(t, err, domain.ErrAlreadyLive)

		// The original session survives the rejected attempt.
		existing, ok := registry.Get("key-a")
		require.True(t, ok)
		assert.Equal(t, domain.SessionID("sess_1"), existing.ID)
	})

	t.Run("live blocks newcomer", func(t *testing.T) {
		registry.SetStatus("key-a", domain.StatusLive)
		err := registry.Register(newSession("sess_3", "key-a", domain.StatusPending))
		assert.ErrorIs(t, err, domain.ErrAlreadyLive)
	})

	t.Run("ended key can be reused", func(t *testing.T) {
		registry.SetStatus("key-a", domain.StatusEnded)
		assert.NoError(t, registry.Register(newSession("sess_4", "key-a", domain.StatusPending)))
	})
}

func TestSessionRegistry_RemoveIsIdempotent(t *testing.T) {
	registry := NewSessionRegistry()
	require.NoError(t, registry.Register(newSession("sess_1", "key-a", domain.StatusLive)))

	registry.Remove("key-a")
	registry.Remove("key-a")
	registry.Remove("never-existed")

	_, ok := registry.Get("key-a")
	assert.False(t, ok)
	_, ok = registry.GetByID("sess_1")
	assert.False(t, ok)
}

func TestSessionRegistry_ListLiveAndCount(t *testing.T) {
	registry := NewSessionRegistry()
	require.NoError(t, registry.Register(newSession("sess_1", "key-a", domain.StatusLive)))
	require.NoError(t, registry.Register(newSession("sess_2", "key-b", domain.StatusPending)))
	require.NoError(t, registry.Register(newSession("sess_3", "key-c", domain.StatusLive)))

	live := registry.ListLive()
	assert.Len(t, live, 2)
	assert.Equal(t, 2, registry.LiveCount())
}

func TestSessionRegistry_CountersAndMode(t *testing.T) {
	registry := NewSessionRegistry()
	require.NoError(t, registry.Register(newSession("sess_1", "key-a", domain.StatusLive)))

	registry.SetViewerCount("key-a", 7)
	registry.AddBytes("key-a", 1024)
	registry.AddBytes("key-a", 512)
	registry.SetMode("key-a", domain.ModeRelay)
	registry.SetKbps("key-a", 2400)

	s, ok := registry.Get("key-a")
	require.True(t, ok)
	assert.Equal(t, 7, s.ViewerCount)
	assert.Equal(t, int64(1536), s.BytesIn)
	assert.Equal(t, domain.ModeRelay, s.Mode)
	assert.Equal(t, 2400, s.LastKbps)

	// Negative counts clamp to zero.
	registry.SetViewerCount("key-a", -3)
	s, _ = registry.Get("key-a")
	assert.Equal(t, 0, s.ViewerCount)
}

func TestSessionRegistry_LookupsReturnSnapshots(t *testing.T) {
	registry := NewSessionRegistry()

	input := newSession("sess_1", "key-a", domain.StatusLive)
	require.NoError(t, registry.Register(input))

	// Mutating the registered struct after Register does not reach the
	// registry's record.
	input.ViewerCount = 99
	s, ok := registry.Get("key-a")
	require.True(t, ok)
	assert.Equal(t, 0, s.ViewerCount)

	// A snapshot taken before a mutator keeps its values, and writing to
	// it does not leak back in.
	before, _ := registry.Get("key-a")
	registry.SetViewerCount("key-a", 7)
	assert.Equal(t, 0, before.ViewerCount)

	before.Status = domain.StatusErrored
	after, _ := registry.GetByID("sess_1")
	assert.Equal(t, domain.StatusLive, after.Status)
	assert.Equal(t, 7, after.ViewerCount)

	// ListLive hands out copies too.
	live := registry.ListLive()
	require.Len(t, live, 1)
	live[0].ViewerCount = 42
	final, _ := registry.Get("key-a")
	assert.Equal(t, 7, final.ViewerCount)
}
