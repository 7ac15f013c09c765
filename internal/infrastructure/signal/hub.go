package signal

import (
	"context"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/services"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Sender is the write side of a signaling connection. *websocket.Conn
// satisfies it.
type Sender interface {
	WriteJSON(v interface{}) error
}

// Event is the wire envelope for signaling messages.
type Event struct {
	Type     string      `json:"type"`
	FromPeer string      `json:"fromPeer,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

type peerState struct {
	id        domain.PeerID
	role      domain.PeerRole
	sessionID domain.SessionID
	sender    Sender
}

type sessionPeers struct {
	key         domain.StreamKey
	broadcaster domain.PeerID
	viewers     map[domain.PeerID]struct{}
}

// Hub routes signaling between broadcasters and viewers of in-browser
// streams. SDP and ICE payloads pass through opaque; the hub only decides
// who receives them.
type Hub struct {
	registry ports.SessionRegistry
	gateway  ports.CredentialGateway
	store    ports.CredentialStore
	topology *services.TopologyService
	notifier ports.SessionNotifier
	fallback ports.FallbackDelegate

	collector  *monitoring.PrometheusCollector
	iceServers []webrtc.ICEServer
	logger     *zap.SugaredLogger

	mu       sync.RWMutex
	peers    map[domain.PeerID]*peerState
	sessions map[domain.SessionID]*sessionPeers
}

func NewHub(
	registry ports.SessionRegistry,
	gateway ports.CredentialGateway,
	store ports.CredentialStore,
	topology *services.TopologyService,
	notifier ports.SessionNotifier,
	fallback ports.FallbackDelegate,
	collector *monitoring.PrometheusCollector,
	iceServers []webrtc.ICEServer,
	logger *zap.SugaredLogger,
) *Hub {
	return &Hub{
		registry:   registry,
		gateway:    gateway,
		store:      store,
		topology:   topology,
		notifier:   notifier,
		fallback:   fallback,
		collector:  collector,
		iceServers: iceServers,
		logger:     logger,
		peers:      make(map[domain.PeerID]*peerState),
		sessions:   make(map[domain.SessionID]*sessionPeers),
	}
}

// Connect registers a peer transport in the lobby.
func (h *Hub) Connect(peerID domain.PeerID, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[peerID] = &peerState{id: peerID, sender: sender}
}

// BroadcasterJoin admits a broadcaster: credential check, session
// registration, lobby announce. Returns the ICE configuration the
// broadcaster should use for its peer connections.
func (h *Hub) BroadcasterJoin(ctx context.Context, peerID domain.PeerID, key domain.StreamKey, title string) (*domain.Session, []webrtc.ICEServer, error) {
	cred, err := h.gateway.Validate(ctx, key)
	if err != nil {
		h.collector.RecordRejectedPublish()
		return nil, nil, err
	}
	if title == "" {
		title = cred.Title
	}

	session := &domain.Session{
		ID:        domain.SessionID(utils.GenerateSessionID()),
		Key:       key,
		OwnerID:   cred.OwnerID,
		Title:     title,
		Source:    domain.SourceMesh,
		Status:    domain.StatusLive,
		Mode:      domain.ModeMesh,
		CreatedAt: time.Now(),
	}
	if err := h.registry.Register(session); err != nil {
		h.collector.RecordRejectedPublish()
		return nil, nil, err
	}
	h.collector.RecordSessionStarted(key)

	h.mu.Lock()
	p, ok := h.peers[peerID]
	if !ok {
		p = &peerState{id: peerID}
		h.peers[peerID] = p
	}
	p.role = domain.RoleBroadcaster
	p.sessionID = session.ID
	h.sessions[session.ID] = &sessionPeers{
		key:         key,
		broadcaster: peerID,
		viewers:     make(map[domain.PeerID]struct{}),
	}
	lobby := h.lobbySenders(peerID)
	h.mu.Unlock()

	if err := h.store.RecordStatus(ctx, key, domain.StatusLive); err != nil {
		h.logger.Warnw("failed to record live status", "stream_key", key, "error", err)
	}

	h.send(lobby, Event{Type: "stream-started", Payload: session.Descriptor(time.Now())})

	h.logger.Infow("broadcaster joined",
		"peer_id", peerID,
		"session_id", session.ID,
		"stream_key", key,
	)
	return session, h.iceServers, nil
}

// ConnectInstruction tells a joining viewer how to receive the stream.
type ConnectInstruction struct {
	Mode        domain.DistributionMode `json:"mode"`
	TargetPeer  domain.PeerID           `json:"targetPeer,omitempty"`
	PlaybackURL string                  `json:"playbackUrl,omitempty"`
	ICEServers  []webrtc.ICEServer      `json:"iceServers,omitempty"`
}

// ViewerJoin adds a viewer to a session and computes its connect path. The
// distribution mode is a pure function of the viewer count; crossing a
// threshold switches new viewers without disturbing connected ones.
func (h *Hub) ViewerJoin(peerID domain.PeerID, sessionID domain.SessionID) (*ConnectInstruction, error) {
	session, ok := h.registry.GetByID(sessionID)
	if !ok || session.Status != domain.StatusLive {
		return nil, domain.ErrStreamNotFound
	}

	h.mu.Lock()
	sp, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return nil, domain.ErrStreamNotFound
	}
	p, pok := h.peers[peerID]
	if !pok {
		p = &peerState{id: peerID}
		h.peers[peerID] = p
	}
	p.role = domain.RoleViewer
	p.sessionID = sessionID
	sp.viewers[peerID] = struct{}{}
	count := len(sp.viewers)
	broadcaster := sp.broadcaster
	key := sp.key
	h.mu.Unlock()

	mode := h.topology.ModeFor(count)
	h.registry.SetMode(key, mode)
	h.notifier.ViewerCountChanged(sessionID, domain.OriginSignaling, count)

	instr := &ConnectInstruction{Mode: mode}
	switch mode {
	case domain.ModeMesh:
		instr.TargetPeer = broadcaster
		instr.ICEServers = h.iceServers
	case domain.ModeRelay:
		// Relay tier still dials the broadcaster; relay peers re-offer
		// amongst themselves over the same signaling channel.
		instr.TargetPeer = broadcaster
		instr.ICEServers = h.iceServers
	default:
		instr.PlaybackURL = h.fallback.PlaybackURL(key)
	}

	h.logger.Infow("viewer joined",
		"peer_id", peerID,
		"session_id", sessionID,
		"viewer_count", count,
		"mode", mode,
	)
	return instr, nil
}

// Relay forwards an opaque signaling payload to the target peer. An
// unknown or disconnected target is a silent no-op; the negotiation's
// retry logic lives in the clients.
func (h *Hub) Relay(fromPeer, targetPeer domain.PeerID, eventType string, payload interface{}) {
	h.mu.RLock()
	target, ok := h.peers[targetPeer]
	h.mu.RUnlock()

	if !ok || target.sender == nil {
		h.logger.Debugw("relay target not connected, dropping",
			"type", eventType,
			"from_peer", fromPeer,
			"target_peer", targetPeer,
		)
		return
	}

	if err := target.sender.WriteJSON(Event{
		Type:     eventType,
		FromPeer: string(fromPeer),
		Payload:  payload,
	}); err != nil {
		h.logger.Debugw("relay write failed", "target_peer", targetPeer, "error", err)
	}
}

// Disconnect handles a peer leaving, by message or transport close. A
// broadcaster's departure ends its session; a viewer's only shrinks the
// count and recomputes the mode.
func (h *Hub) Disconnect(peerID domain.PeerID) {
	h.mu.Lock()
	p, ok := h.peers[peerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.peers, peerID)
	role := p.role
	sessionID := p.sessionID
	h.mu.Unlock()

	if sessionID == "" {
		return
	}

	switch role {
	case domain.RoleBroadcaster:
		h.endSession(sessionID)
	case domain.RoleViewer:
		h.viewerLeft(peerID, sessionID)
	}
}

func (h *Hub) viewerLeft(peerID domain.PeerID, sessionID domain.SessionID) {
	h.mu.Lock()
	sp, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(sp.viewers, peerID)
	count := len(sp.viewers)
	key := sp.key
	h.mu.Unlock()

	mode := h.topology.ModeFor(count)
	h.registry.SetMode(key, mode)
	h.notifier.ViewerCountChanged(sessionID, domain.OriginSignaling, count)
}

// endSession tears down a mesh session after its broadcaster leaves.
func (h *Hub) endSession(sessionID domain.SessionID) {
	h.mu.Lock()
	sp, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)

	targets := make([]Sender, 0, len(sp.viewers))
	for vid := range sp.viewers {
		if v, ok := h.peers[vid]; ok && v.sender != nil {
			targets = append(targets, v.sender)
			v.sessionID = ""
		}
	}
	key := sp.key
	h.mu.Unlock()

	h.send(targets, Event{Type: "stream-ended", Payload: map[string]interface{}{
		"sessionId": sessionID,
	}})

	if session, found := h.registry.GetByID(sessionID); found {
		h.collector.RecordSessionEnded(key, time.Since(session.CreatedAt).Seconds())
	}
	h.registry.SetStatus(key, domain.StatusEnded)
	h.registry.Remove(key)
	h.notifier.SessionEnded(sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.RecordStatus(ctx, key, domain.StatusEnded); err != nil {
		h.logger.Warnw("failed to record ended status", "stream_key", key, "error", err)
	}

	h.logger.Infow("session ended", "session_id", sessionID, "stream_key", key)
}

// OpenConnections reports the current signaling transport count.
func (h *Hub) OpenConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// lobbySenders snapshots every connected peer except the given one.
// Caller must hold h.mu.
func (h *Hub) lobbySenders(except domain.PeerID) []Sender {
	targets := make([]Sender, 0, len(h.peers))
	for id, p := range h.peers {
		if id == except || p.sender == nil {
			continue
		}
		targets = append(targets, p.sender)
	}
	return targets
}

func (h *Hub) send(targets []Sender, event Event) {
	for _, sender := range targets {
		if err := sender.WriteJSON(event); err != nil {
			h.logger.Debugw("signal write failed", "type", event.Type, "error", err)
		}
	}
}
