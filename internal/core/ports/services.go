package ports

import (
	"context"

	"streamcast/internal/core/domain"
)

// CredentialGateway validates a publish attempt before a session is admitted.
type CredentialGateway interface {
	Validate(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error)
}

// Encoder is the narrow interface of an owned encode subprocess. Exactly one
// ingest session owns each encoder; Write after Stop is a no-op.
type Encoder interface {
	Start(ctx context.Context) error
	Write(p []byte) (int, error)
	SampleHealth() EncoderHealth
	Stop()
}

// EncoderHealth is a point-in-time sample of the subprocess.
type EncoderHealth struct {
	Running  bool
	BytesIn  int64
	UptimeMs int64
}

// EncoderFactory builds an encoder for one session's media flow.
type EncoderFactory interface {
	New(key domain.StreamKey, videoKbps, audioKbps int, onExit func(error)) Encoder
}

// SessionNotifier is how ingest paths tell the fanout layer about session
// lifecycle. Explicit message passing; no event emitter. Viewer counts are
// reported per origin; the notifier owns the merged total and is the only
// writer of the registry's viewer count.
type SessionNotifier interface {
	SessionEnded(id domain.SessionID)
	ViewerCountChanged(id domain.SessionID, origin domain.ViewerOrigin, count int)
}

// FallbackDelegate hands out a segmented-playback URL when a stream
// escalates past the relay tier.
type FallbackDelegate interface {
	PlaybackURL(key domain.StreamKey) string
}
