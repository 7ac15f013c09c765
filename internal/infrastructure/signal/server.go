package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type broadcasterJoinPayload struct {
	StreamKey domain.StreamKey `json:"streamKey"`
	Title     string           `json:"title,omitempty"`
}

type viewerJoinPayload struct {
	SessionID domain.SessionID `json:"sessionId"`
}

type relayPayload struct {
	TargetID domain.PeerID   `json:"targetId"`
	Data     json.RawMessage `json:"data"`
}

// Server is the WebSocket transport in front of the signaling hub.
type Server struct {
	hub    *Hub
	logger *zap.SugaredLogger

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewServer(hub *Hub, logger *zap.SugaredLogger) *Server {
	return &Server{
		hub:          hub,
		logger:       logger,
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Peers address each other by this id in offer/answer relays, so a
	// well-formed one is required up front.
	peerID := domain.PeerID(r.URL.Query().Get("peer_id"))
	if err := validation.ValidatePeerID(string(peerID)); err != nil {
		s.logger.Warnw("rejected peer id", "peer_id", peerID, "error", err)
		return
	}

	s.hub.Connect(peerID, conn)
	s.logger.Infow("peer connected", "peer_id", peerID)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan inboundMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if err := s.handleMessage(r.Context(), peerID, conn, msg); err != nil {
				s.logger.Infow("error handling signal message",
					"peer_id", peerID,
					"type", msg.Type,
					"error", err,
				)
				s.sendError(conn, err)
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "peer_id", peerID, "error", err)
				s.cleanup(peerID)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading from peer", "peer_id", peerID, "error", err)
			}
			s.cleanup(peerID)
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, peerID domain.PeerID, conn *websocket.Conn, msg inboundMessage) error {
	switch msg.Type {
	case "broadcaster-join":
		var payload broadcasterJoinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		if err := validation.ValidateStreamKey(string(payload.StreamKey)); err != nil {
			return err
		}
		if payload.Title != "" {
			if err := validation.ValidateStreamTitle(payload.Title); err != nil {
				return err
			}
		}
		session, iceServers, err := s.hub.BroadcasterJoin(ctx, peerID, payload.StreamKey, payload.Title)
		if err != nil {
			return err
		}
		return conn.WriteJSON(Event{Type: "joined", Payload: map[string]interface{}{
			"sessionId":  session.ID,
			"iceServers": iceServers,
		}})

	case "viewer-join":
		var payload viewerJoinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		instr, err := s.hub.ViewerJoin(peerID, payload.SessionID)
		if err != nil {
			if errors.Is(err, domain.ErrStreamNotFound) {
				return conn.WriteJSON(Event{Type: "error", Payload: map[string]interface{}{
					"code":    "StreamNotFound",
					"message": err.Error(),
				}})
			}
			return err
		}
		return conn.WriteJSON(Event{Type: "connect", Payload: instr})

	case "offer", "answer", "ice-candidate":
		var payload relayPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		s.hub.Relay(peerID, payload.TargetID, msg.Type, payload.Data)
		return nil

	case "disconnect":
		s.hub.Disconnect(peerID)
		return nil

	default:
		return errors.New("unknown message type: " + msg.Type)
	}
}

func (s *Server) cleanup(peerID domain.PeerID) {
	s.hub.Disconnect(peerID)
	s.logger.Infow("peer disconnected", "peer_id", peerID)
}

func (s *Server) sendError(conn *websocket.Conn, err error) {
	conn.WriteJSON(Event{Type: "error", Payload: map[string]interface{}{
		"message": err.Error(),
	}})
}
