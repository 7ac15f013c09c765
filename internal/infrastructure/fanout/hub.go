package fanout

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sender is the write side of a viewer connection. *websocket.Conn
// satisfies it.
type Sender interface {
	WriteJSON(v interface{}) error
}

// Event is the wire envelope for fanout messages.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type viewerConn struct {
	id          domain.PeerID
	userID      domain.UserID
	displayName string
	sender      Sender
	limiter     *rate.Limiter
	sessions    map[domain.SessionID]struct{}
}

type room struct {
	ring       *MessageRing
	viewers    map[domain.PeerID]struct{}
	moderators map[domain.UserID]struct{}
	ownerID    domain.UserID
	// broadcastMu serializes broadcasts so every viewer observes the
	// same message order.
	broadcastMu sync.Mutex
}

// Hub is the viewer-facing fanout: chat rooms, viewer counts, and session
// lifecycle notifications. It also implements ports.SessionNotifier so
// ingest paths can push stream-ended and count changes through it.
type Hub struct {
	registry  ports.SessionRegistry
	collector *monitoring.PrometheusCollector
	logger    *zap.SugaredLogger

	msgsPerSecond float64
	burst         int

	mu      sync.RWMutex
	viewers map[domain.PeerID]*viewerConn
	rooms   map[domain.SessionID]*room
	// counts holds each serving surface's reported viewer cardinality per
	// session. The hub is the only writer of the registry's merged total.
	counts map[domain.SessionID]map[domain.ViewerOrigin]int
}

var _ ports.SessionNotifier = (*Hub)(nil)

func NewHub(registry ports.SessionRegistry, collector *monitoring.PrometheusCollector, msgsPerSecond float64, burst int, logger *zap.SugaredLogger) *Hub {
	if msgsPerSecond <= 0 {
		msgsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Hub{
		registry:      registry,
		collector:     collector,
		logger:        logger,
		msgsPerSecond: msgsPerSecond,
		burst:         burst,
		viewers:       make(map[domain.PeerID]*viewerConn),
		rooms:         make(map[domain.SessionID]*room),
		counts:        make(map[domain.SessionID]map[domain.ViewerOrigin]int),
	}
}

// Connect registers a viewer transport. A reconnect replaces the old sender.
func (h *Hub) Connect(viewerID domain.PeerID, userID domain.UserID, displayName string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, replaced := h.viewers[viewerID]; !replaced {
		h.collector.RecordViewerJoined()
	}
	h.viewers[viewerID] = &viewerConn{
		id:          viewerID,
		userID:      userID,
		displayName: displayName,
		sender:      sender,
		limiter:     rate.NewLimiter(rate.Limit(h.msgsPerSecond), h.burst),
		sessions:    make(map[domain.SessionID]struct{}),
	}
}

// Disconnect removes the viewer from every session it had joined and
// recomputes counts per affected session. Safe when the viewer never
// sent leave-stream.
func (h *Hub) Disconnect(viewerID domain.PeerID) {
	h.mu.Lock()
	v, ok := h.viewers[viewerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.viewers, viewerID)
	h.collector.RecordViewerLeft()

	affected := make([]domain.SessionID, 0, len(v.sessions))
	for sid := range v.sessions {
		if r, ok := h.rooms[sid]; ok {
			delete(r.viewers, viewerID)
			affected = append(affected, sid)
		}
	}
	h.mu.Unlock()

	for _, sid := range affected {
		h.publishViewerCount(sid)
	}
}

// Join adds the viewer to a session's room, replays recent chat history to
// it, and broadcasts the new viewer count.
func (h *Hub) Join(viewerID domain.PeerID, sessionID domain.SessionID) error {
	session, ok := h.registry.GetByID(sessionID)
	if !ok {
		return domain.ErrStreamNotFound
	}

	h.mu.Lock()
	v, ok := h.viewers[viewerID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("viewer %s not connected", viewerID)
	}

	r, ok := h.rooms[sessionID]
	if !ok {
		r = &room{
			ring:       NewMessageRing(domain.ChatRingCapacity),
			viewers:    make(map[domain.PeerID]struct{}),
			moderators: make(map[domain.UserID]struct{}),
			ownerID:    session.OwnerID,
		}
		h.rooms[sessionID] = r
	}
	r.viewers[viewerID] = struct{}{}
	v.sessions[sessionID] = struct{}{}

	history := r.ring.Last(domain.ChatHistorySize)
	sender := v.sender
	h.mu.Unlock()

	if err := sender.WriteJSON(Event{Type: "chat-history", Payload: history}); err != nil {
		h.logger.Debugw("failed to send chat history", "viewer_id", viewerID, "error", err)
	}

	h.publishViewerCount(sessionID)
	return nil
}

// Leave removes the viewer from one session's room.
func (h *Hub) Leave(viewerID domain.PeerID, sessionID domain.SessionID) {
	h.mu.Lock()
	if v, ok := h.viewers[viewerID]; ok {
		delete(v.sessions, sessionID)
	}
	r, ok := h.rooms[sessionID]
	if ok {
		delete(r.viewers, viewerID)
	}
	h.mu.Unlock()

	if ok {
		h.publishViewerCount(sessionID)
	}
}

// SetModerator flags a user as moderator for a session's chat.
func (h *Hub) SetModerator(sessionID domain.SessionID, userID domain.UserID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[sessionID]; ok {
		r.moderators[userID] = struct{}{}
	}
}

// PostMessage validates, stores, and broadcasts one chat message. Messages
// over the length cap or from viewers without a display name are rejected
// before any state changes.
func (h *Hub) PostMessage(viewerID domain.PeerID, sessionID domain.SessionID, body string) (*domain.ChatMessage, error) {
	if utf8.RuneCountInString(body) > domain.ChatMessageMaxLen {
		return nil, domain.ErrMessageTooLong
	}

	h.mu.RLock()
	v, vok := h.viewers[viewerID]
	r, rok := h.rooms[sessionID]
	var (
		author      domain.UserID
		displayName string
		limiter     *rate.Limiter
		isStreamer  bool
		isMod       bool
	)
	if vok && rok {
		author = v.userID
		displayName = v.displayName
		limiter = v.limiter
		isStreamer = v.userID == r.ownerID && v.userID != ""
		_, isMod = r.moderators[v.userID]
	}
	h.mu.RUnlock()

	if !vok || !rok {
		return nil, domain.ErrStreamNotFound
	}
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name", domain.ErrMissingField)
	}
	if !limiter.Allow() {
		return nil, fmt.Errorf("chat rate limit exceeded for %s", viewerID)
	}

	msg := domain.ChatMessage{
		ID:          utils.GenerateMessageID(),
		AuthorID:    author,
		AuthorName:  displayName,
		Body:        body,
		SentAt:      time.Now(),
		IsStreamer:  isStreamer,
		IsModerator: isMod,
	}

	r.broadcastMu.Lock()
	r.ring.Append(msg)
	h.broadcast(sessionID, Event{Type: "chat-message", Payload: msg})
	r.broadcastMu.Unlock()

	h.collector.RecordChatMessage()
	return &msg, nil
}

// SessionEnded notifies every viewer in the session's room and tears the
// room down.
func (h *Hub) SessionEnded(id domain.SessionID) {
	h.mu.Lock()
	r, ok := h.rooms[id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, id)
	delete(h.counts, id)
	targets := h.sendersFor(r)
	for vid := range r.viewers {
		if v, ok := h.viewers[vid]; ok {
			delete(v.sessions, id)
		}
	}
	h.mu.Unlock()

	h.send(targets, Event{Type: "stream-ended", Payload: map[string]interface{}{
		"sessionId": id,
	}})
}

// ViewerCountChanged merges an origin-scoped cardinality reported by
// another serving surface (the signaling hub or the raw publish path) into
// the session's total.
func (h *Hub) ViewerCountChanged(id domain.SessionID, origin domain.ViewerOrigin, count int) {
	h.mu.Lock()
	total, targets := h.mergeCount(id, origin, count)
	h.mu.Unlock()

	h.publishTotal(id, total, targets)
}

// OpenConnections reports the current viewer transport count.
func (h *Hub) OpenConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// publishViewerCount folds the session's current room membership into the
// merged total, stores it, and broadcasts it.
func (h *Hub) publishViewerCount(sessionID domain.SessionID) {
	h.mu.Lock()
	var roomCount int
	if r, ok := h.rooms[sessionID]; ok {
		roomCount = len(r.viewers)
	}
	total, targets := h.mergeCount(sessionID, domain.OriginFanout, roomCount)
	h.mu.Unlock()

	h.publishTotal(sessionID, total, targets)
}

// mergeCount records one origin's cardinality and returns the new total
// with the room's senders. Caller must hold h.mu.
func (h *Hub) mergeCount(id domain.SessionID, origin domain.ViewerOrigin, count int) (int, []Sender) {
	byOrigin, ok := h.counts[id]
	if !ok {
		byOrigin = make(map[domain.ViewerOrigin]int)
		h.counts[id] = byOrigin
	}
	if count <= 0 {
		delete(byOrigin, origin)
	} else {
		byOrigin[origin] = count
	}

	total := 0
	for _, c := range byOrigin {
		total += c
	}

	var targets []Sender
	if r, ok := h.rooms[id]; ok {
		targets = h.sendersFor(r)
	}
	return total, targets
}

// publishTotal is the single registry write path for viewer counts.
func (h *Hub) publishTotal(id domain.SessionID, total int, targets []Sender) {
	if session, found := h.registry.GetByID(id); found {
		h.registry.SetViewerCount(session.Key, total)
		h.collector.UpdateSessionViewers(session.Key, total)
	}

	h.send(targets, Event{Type: "viewer-count", Payload: map[string]interface{}{
		"sessionId": id,
		"count":     total,
	}})
}

// sendersFor snapshots the room's senders. Caller must hold h.mu.
func (h *Hub) sendersFor(r *room) []Sender {
	targets := make([]Sender, 0, len(r.viewers))
	for vid := range r.viewers {
		if v, ok := h.viewers[vid]; ok {
			targets = append(targets, v.sender)
		}
	}
	return targets
}

// broadcast sends an event to every viewer in a session's room. Caller
// must hold h.mu or the room's broadcastMu.
func (h *Hub) broadcast(sessionID domain.SessionID, event Event) {
	h.mu.RLock()
	r, ok := h.rooms[sessionID]
	var targets []Sender
	if ok {
		targets = h.sendersFor(r)
	}
	h.mu.RUnlock()

	if ok {
		h.send(targets, event)
	}
}

func (h *Hub) send(targets []Sender, event Event) {
	for _, sender := range targets {
		if err := sender.WriteJSON(event); err != nil {
			h.logger.Debugw("fanout write failed", "type", event.Type, "error", err)
		}
	}
}
