package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/services"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/streaming"
	"streamcast/pkg/tracing"

	"go.uber.org/zap"
)

// Sender is the write side of a broadcaster connection. *websocket.Conn
// satisfies it.
type Sender interface {
	WriteJSON(v interface{}) error
}

// Event is the wire envelope for ingest control messages.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type sessionState int32

const (
	statePending sessionState = iota
	stateConfiguring
	stateLive
	stateEnded
	stateErrored
)

// Session owns one broadcaster's ingest: the socket, the encoder
// subprocess, the registry entry, and the segment directory. Exactly one
// goroutine reads the socket; teardown runs at most once regardless of
// which failure path triggers it.
type Session struct {
	id      domain.SessionID
	key     domain.StreamKey
	ownerID domain.UserID

	registry  ports.SessionRegistry
	store     ports.CredentialStore
	notifier  ports.SessionNotifier
	factory   ports.EncoderFactory
	segments  *streaming.SegmentStore
	collector *monitoring.PrometheusCollector
	quality   *services.ThroughputService
	sender    Sender
	logger    *zap.SugaredLogger

	retentionGrace time.Duration

	state   atomic.Int32
	torn    atomic.Bool
	bytesIn atomic.Int64

	mu      sync.Mutex
	encoder ports.Encoder

	startedAt time.Time
	stopTick  chan struct{}
}

type SessionDeps struct {
	Registry       ports.SessionRegistry
	Store          ports.CredentialStore
	Notifier       ports.SessionNotifier
	EncoderFactory ports.EncoderFactory
	Segments       *streaming.SegmentStore
	Collector      *monitoring.PrometheusCollector
	Quality        *services.ThroughputService
	RetentionGrace time.Duration
	Logger         *zap.SugaredLogger
}

// NewSession admits a broadcaster whose credential has already been
// validated. The registry entry is created immediately so a concurrent
// publish of the same key is rejected before the encoder ever starts.
func NewSession(id domain.SessionID, cred *domain.StreamCredential, source domain.SourceKind, sender Sender, deps SessionDeps) (*Session, error) {
	s := &Session{
		id:             id,
		key:            cred.Key,
		ownerID:        cred.OwnerID,
		registry:       deps.Registry,
		store:          deps.Store,
		notifier:       deps.Notifier,
		factory:        deps.EncoderFactory,
		segments:       deps.Segments,
		collector:      deps.Collector,
		quality:        deps.Quality,
		retentionGrace: deps.RetentionGrace,
		sender:         sender,
		logger:         deps.Logger,
		startedAt:      time.Now(),
		stopTick:       make(chan struct{}),
	}

	session := &domain.Session{
		ID:        id,
		Key:       cred.Key,
		OwnerID:   cred.OwnerID,
		Title:     cred.Title,
		Source:    source,
		Status:    domain.StatusPending,
		Mode:      domain.ModeMesh,
		CreatedAt: s.startedAt,
	}
	if err := deps.Registry.Register(session); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() domain.SessionID  { return s.id }
func (s *Session) Key() domain.StreamKey { return s.key }

// Configure starts the encoder and transitions the session Live. Valid
// only once, from the pending state.
func (s *Session) Configure(ctx context.Context, videoKbps, audioKbps int, tickInterval time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.configure")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.StreamKeyKey.String(string(s.key)))

	if !s.state.CompareAndSwap(int32(statePending), int32(stateConfiguring)) {
		return domain.ErrSessionEnded
	}

	if _, err := s.segments.EnsureDir(s.key); err != nil {
		tracing.RecordError(ctx, err)
		s.fail(err)
		return err
	}

	enc := s.factory.New(s.key, videoKbps, audioKbps, s.onEncoderExit)
	if err := enc.Start(ctx); err != nil {
		tracing.RecordError(ctx, err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.encoder = enc
	s.mu.Unlock()

	s.state.Store(int32(stateLive))
	s.registry.SetStatus(s.key, domain.StatusLive)
	s.collector.RecordSessionStarted(s.key)

	if err := s.store.RecordStatus(context.WithoutCancel(ctx), s.key, domain.StatusLive); err != nil {
		s.logger.Warnw("failed to record live status", "stream_key", s.key, "error", err)
	}

	go s.qualityLoop(tickInterval)

	s.logger.Infow("ingest session live",
		"session_id", s.id,
		"stream_key", s.key,
		"video_kbps", videoKbps,
		"audio_kbps", audioKbps,
	)

	return s.sender.WriteJSON(Event{Type: "stream-key", Payload: map[string]interface{}{
		"key":         s.key,
		"playbackUrl": s.segments.PlaybackURL(s.key),
	}})
}

// HandleMedia forwards one binary chunk to the encoder. Never blocks the
// read loop on failure; a write error is logged and the bytes dropped.
func (s *Session) HandleMedia(chunk []byte) {
	if sessionState(s.state.Load()) != stateLive {
		return
	}

	s.mu.Lock()
	enc := s.encoder
	s.mu.Unlock()
	if enc == nil {
		return
	}

	if _, err := enc.Write(chunk); err != nil {
		s.logger.Warnw("dropped media chunk", "stream_key", s.key, "error", err)
		return
	}

	n := int64(len(chunk))
	s.bytesIn.Add(n)
	s.registry.AddBytes(s.key, n)
	s.collector.RecordBytesIngested(n)
}

// qualityLoop periodically samples the encoder's health, derives ingest
// throughput from the bytes it has accepted, and pushes quality and
// viewer-count updates to the broadcaster.
func (s *Session) qualityLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastBytes int64
	lastAt := time.Now()

	for {
		select {
		case <-s.stopTick:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			enc := s.encoder
			s.mu.Unlock()
			if enc == nil {
				continue
			}

			health := enc.SampleHealth()
			if !health.Running {
				// The exit watcher owns the failure transition; a
				// stopped encoder just has nothing to report.
				continue
			}

			kbps := s.quality.Kbps(health.BytesIn-lastBytes, now.Sub(lastAt))
			lastBytes = health.BytesIn
			lastAt = now

			tier := s.quality.Classify(kbps)
			s.collector.UpdateSessionBitrate(s.key, float64(kbps))
			s.registry.SetKbps(s.key, kbps)

			if session, ok := s.registry.Get(s.key); ok {
				s.sendEvent(Event{Type: "viewers", Payload: map[string]interface{}{
					"count": session.ViewerCount,
				}})
			}

			s.sendEvent(Event{Type: "quality", Payload: map[string]interface{}{
				"quality": tier,
				"kbps":    kbps,
			}})

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.store.RecordStats(ctx, s.key, health.BytesIn, s.currentViewers()); err != nil {
				s.logger.Debugw("failed to record stats", "stream_key", s.key, "error", err)
			}
			cancel()
		}
	}
}

func (s *Session) currentViewers() int {
	if session, ok := s.registry.Get(s.key); ok {
		return session.ViewerCount
	}
	return 0
}

// onEncoderExit handles the subprocess terminating on its own. A crash
// while live transitions the session Errored.
func (s *Session) onEncoderExit(err error) {
	if err == nil {
		return
	}
	if sessionState(s.state.Load()) != stateLive {
		return
	}
	s.collector.RecordEncoderFailure()
	s.fail(err)
}

// fail moves the session to Errored, informs the broadcaster, and tears
// down.
func (s *Session) fail(cause error) {
	s.state.Store(int32(stateErrored))
	s.sendEvent(Event{Type: "error", Payload: map[string]interface{}{
		"message": cause.Error(),
	}})
	s.teardown(domain.StatusErrored)
}

// End finishes the session normally. Called on clean close or explicit
// end message; safe to call multiple times.
func (s *Session) End() {
	if sessionState(s.state.Load()) != stateErrored {
		s.state.Store(int32(stateEnded))
	}
	s.teardown(domain.StatusEnded)
}

// teardown is the single-shot cleanup path shared by End and fail. The
// CAS guarantees the encoder is stopped and the registry entry removed
// exactly once no matter how many paths race here.
func (s *Session) teardown(status domain.SessionStatus) {
	if !s.torn.CompareAndSwap(false, true) {
		return
	}

	close(s.stopTick)

	s.mu.Lock()
	enc := s.encoder
	s.encoder = nil
	s.mu.Unlock()
	if enc != nil {
		enc.Stop()
	}

	s.registry.SetStatus(s.key, status)
	s.registry.Remove(s.key)
	s.notifier.SessionEnded(s.id)
	s.collector.RecordSessionEnded(s.key, time.Since(s.startedAt).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordStatus(ctx, s.key, status); err != nil {
		s.logger.Warnw("failed to record final status", "stream_key", s.key, "error", err)
	}

	s.segments.RemoveAfter(s.key, s.retentionGrace)

	s.logger.Infow("ingest session torn down",
		"session_id", s.id,
		"stream_key", s.key,
		"status", status,
		"bytes_in", s.bytesIn.Load(),
	)
}

func (s *Session) sendEvent(event Event) {
	if err := s.sender.WriteJSON(event); err != nil {
		s.logger.Debugw("ingest write failed", "type", event.Type, "error", err)
	}
}
