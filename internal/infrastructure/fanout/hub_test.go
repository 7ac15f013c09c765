package fanout

import (
	"strings"
	"sync"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Prometheus collectors register globally, so the package shares one.
var testCollector = monitoring.NewPrometheusCollector()

type fakeSender struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeSender) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, v.(Event))
	return nil
}

func (f *fakeSender) eventsOfType(eventType string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newHubFixture(t *testing.T) (*Hub, ports.SessionRegistry) {
	t.Helper()
	registry := memory.NewSessionRegistry()
	hub := NewHub(registry, testCollector, 1000, 1000, zap.NewNop().Sugar())
	return hub, registry
}

func registerLiveSession(t *testing.T, registry ports.SessionRegistry, id domain.SessionID, key domain.StreamKey) {
	t.Helper()
	require.NoError(t, registry.Register(&domain.Session{
		ID:        id,
		Key:       key,
		OwnerID:   "owner-1",
		Status:    domain.StatusLive,
		Source:    domain.SourceRelay,
		CreatedAt: time.Now(),
	}))
}

func TestHub_JoinReplaysHistory(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	first := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", first)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	for _, body := range []string{"one", "two", "three"} {
		_, err := hub.PostMessage("viewer-1", "sess_1", body)
		require.NoError(t, err)
	}

	late := &fakeSender{}
	hub.Connect("viewer-2", "user-2", "Bob", late)
	require.NoError(t, hub.Join("viewer-2", "sess_1"))

	histories := late.eventsOfType("chat-history")
	require.Len(t, histories, 1)
	history := histories[0].Payload.([]domain.ChatMessage)
	require.Len(t, history, 3)
	assert.Equal(t, "one", history[0].Body)
	assert.Equal(t, "three", history[2].Body)
}

func TestHub_JoinUnknownSession(t *testing.T) {
	hub, _ := newHubFixture(t)

	hub.Connect("viewer-1", "user-1", "Alice", &fakeSender{})
	err := hub.Join("viewer-1", "sess_missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestHub_PostMessageValidation(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	named := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", named)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	anonymous := &fakeSender{}
	hub.Connect("viewer-2", "user-2", "", anonymous)
	require.NoError(t, hub.Join("viewer-2", "sess_1"))

	t.Run("over length cap", func(t *testing.T) {
		_, err := hub.PostMessage("viewer-1", "sess_1", strings.Repeat("x", domain.ChatMessageMaxLen+1))
		assert.ErrorIs(t, err, domain.ErrMessageTooLong)
		assert.Empty(t, named.eventsOfType("chat-message"))
	})

	t.Run("exactly at length cap", func(t *testing.T) {
		_, err := hub.PostMessage("viewer-1", "sess_1", strings.Repeat("x", domain.ChatMessageMaxLen))
		assert.NoError(t, err)
	})

	t.Run("missing display name", func(t *testing.T) {
		_, err := hub.PostMessage("viewer-2", "sess_1", "hello")
		assert.ErrorIs(t, err, domain.ErrMissingField)
	})
}

func TestHub_BroadcastOrderAndFlags(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	streamer := &fakeSender{}
	hub.Connect("viewer-1", "owner-1", "Streamer", streamer)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	watcher := &fakeSender{}
	hub.Connect("viewer-2", "user-2", "Bob", watcher)
	require.NoError(t, hub.Join("viewer-2", "sess_1"))

	msg, err := hub.PostMessage("viewer-1", "sess_1", "hi chat")
	require.NoError(t, err)
	assert.True(t, msg.IsStreamer)
	assert.False(t, msg.IsModerator)

	hub.SetModerator("sess_1", "user-2")
	modMsg, err := hub.PostMessage("viewer-2", "sess_1", "hello")
	require.NoError(t, err)
	assert.True(t, modMsg.IsModerator)
	assert.False(t, modMsg.IsStreamer)

	// Every room member observed both messages in send order.
	for _, sender := range []*fakeSender{streamer, watcher} {
		events := sender.eventsOfType("chat-message")
		require.Len(t, events, 2)
		assert.Equal(t, "hi chat", events[0].Payload.(domain.ChatMessage).Body)
		assert.Equal(t, "hello", events[1].Payload.(domain.ChatMessage).Body)
	}
}

func TestHub_DisconnectSweepsAllSessions(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")
	registerLiveSession(t, registry, "sess_2", "key-b")

	roamer := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", roamer)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))
	require.NoError(t, hub.Join("viewer-1", "sess_2"))

	other := &fakeSender{}
	hub.Connect("viewer-2", "user-2", "Bob", other)
	require.NoError(t, hub.Join("viewer-2", "sess_1"))

	// Transport dropped without leave-stream.
	hub.Disconnect("viewer-1")

	sessA, _ := registry.Get("key-a")
	assert.Equal(t, 1, sessA.ViewerCount)
	sessB, _ := registry.Get("key-b")
	assert.Equal(t, 0, sessB.ViewerCount)

	counts := other.eventsOfType("viewer-count")
	require.NotEmpty(t, counts)
	lastCount := counts[len(counts)-1].Payload.(map[string]interface{})
	assert.Equal(t, 1, lastCount["count"])
}

func TestHub_SessionEnded(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	watcher := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", watcher)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	hub.SessionEnded("sess_1")

	assert.Len(t, watcher.eventsOfType("stream-ended"), 1)

	// The room is gone; further messages fail.
	_, err := hub.PostMessage("viewer-1", "sess_1", "anyone there?")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)

	// Ending again is a no-op.
	hub.SessionEnded("sess_1")
	assert.Len(t, watcher.eventsOfType("stream-ended"), 1)
}

func TestHub_MergesCountsAcrossOrigins(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	// Five WebRTC peers are watching via the signaling path.
	hub.ViewerCountChanged("sess_1", domain.OriginSignaling, 5)
	s, _ := registry.Get("key-a")
	assert.Equal(t, 5, s.ViewerCount)

	// A chat viewer joining adds to the total instead of replacing it.
	watcher := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", watcher)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	s, _ = registry.Get("key-a")
	assert.Equal(t, 6, s.ViewerCount)

	// A raw-protocol play stacks on top of both.
	hub.ViewerCountChanged("sess_1", domain.OriginPull, 2)
	s, _ = registry.Get("key-a")
	assert.Equal(t, 8, s.ViewerCount)

	counts := watcher.eventsOfType("viewer-count")
	require.NotEmpty(t, counts)
	last := counts[len(counts)-1].Payload.(map[string]interface{})
	assert.Equal(t, 8, last["count"])

	// An origin dropping to zero removes only its share.
	hub.ViewerCountChanged("sess_1", domain.OriginSignaling, 0)
	s, _ = registry.Get("key-a")
	assert.Equal(t, 3, s.ViewerCount)
}

func TestHub_ModeratorChangesDuringChat(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")

	hub.Connect("viewer-1", "user-1", "Alice", &fakeSender{})
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.SetModerator("sess_1", "user-1")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := hub.PostMessage("viewer-1", "sess_1", "hello")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Once the flag is set, subsequent messages carry it.
	msg, err := hub.PostMessage("viewer-1", "sess_1", "last word")
	require.NoError(t, err)
	assert.True(t, msg.IsModerator)
}

func TestHub_ChatRateLimit(t *testing.T) {
	registry := memory.NewSessionRegistry()
	hub := NewHub(registry, testCollector, 1, 2, zap.NewNop().Sugar())
	registerLiveSession(t, registry, "sess_1", "key-a")

	sender := &fakeSender{}
	hub.Connect("viewer-1", "user-1", "Alice", sender)
	require.NoError(t, hub.Join("viewer-1", "sess_1"))

	_, err := hub.PostMessage("viewer-1", "sess_1", "one")
	require.NoError(t, err)
	_, err = hub.PostMessage("viewer-1", "sess_1", "two")
	require.NoError(t, err)

	// Burst exhausted; the third immediate message is dropped.
	_, err = hub.PostMessage("viewer-1", "sess_1", "three")
	assert.Error(t, err)
}
