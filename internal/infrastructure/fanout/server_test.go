package fanout

import (
	"encoding/json"
	"strings"
	"testing"

	"streamcast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServer_RejectsMalformedChatInput(t *testing.T) {
	hub, registry := newHubFixture(t)
	registerLiveSession(t, registry, "sess_1", "key-a")
	s := NewServer(hub, zap.NewNop().Sugar())

	connected := false

	t.Run("oversized body stops at the transport", func(t *testing.T) {
		payload, err := json.Marshal(chatPayload{
			SessionID: "sess_1",
			Body:      strings.Repeat("x", domain.ChatMessageMaxLen+1),
		})
		require.NoError(t, err)

		err = s.handleMessage("viewer-1", nil, &connected, inboundMessage{Type: "chat-message", Payload: payload})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too long")
	})

	t.Run("malformed display name blocks the join", func(t *testing.T) {
		payload, err := json.Marshal(joinPayload{
			SessionID:   "sess_1",
			UserID:      "user-1",
			DisplayName: strings.Repeat("n", 51),
		})
		require.NoError(t, err)

		err = s.handleMessage("viewer-1", nil, &connected, inboundMessage{Type: "join-stream", Payload: payload})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too long")
		assert.False(t, connected)
	})
}
