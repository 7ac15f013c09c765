package fanout

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/pkg/utils"
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

type joinPayload struct {
	SessionID   domain.SessionID `json:"sessionId"`
	UserID      domain.UserID    `json:"userId"`
	DisplayName string           `json:"displayName"`
}

type chatPayload struct {
	SessionID domain.SessionID `json:"sessionId"`
	Body      string           `json:"body"`
}

// Server is the WebSocket transport in front of the fanout hub.
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

	// A client may bring its own viewer id (reconnects keep chat state);
	// otherwise one is assigned.
	viewerID := domain.PeerID(r.URL.Query().Get("viewer_id"))
	if viewerID == "" {
		viewerID = domain.PeerID(utils.GeneratePeerID())
	} else if err := validation.ValidatePeerID(string(viewerID)); err != nil {
		s.logger.Warnw("rejected viewer id", "viewer_id", viewerID, "error", err)
		return
	}

	s.logger.Infow("viewer connected", "viewer_id", viewerID)

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

	connected := false

	for {
		select {
		case msg := <-messageChan:
			if err := s.handleMessage(viewerID, conn, &connected, msg); err != nil {
				s.logger.Infow("error handling fanout message",
					"viewer_id", viewerID,
					"type", msg.Type,
					"error", err,
				)
				s.sendError(conn, err)
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "viewer_id", viewerID, "error", err)
				s.cleanup(viewerID)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading from viewer", "viewer_id", viewerID, "error", err)
			}
			s.cleanup(viewerID)
			return
		}
	}
}

func (s *Server) handleMessage(viewerID domain.PeerID, conn *websocket.Conn, connected *bool, msg inboundMessage) error {
	switch msg.Type {
	case "join-stream":
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		// Anonymous viewers may watch; a display name, once given, must
		// be well formed since it is what chat broadcasts.
		if payload.DisplayName != "" {
			if err := validation.ValidateDisplayName(payload.DisplayName); err != nil {
				return err
			}
		}
		if !*connected {
			s.hub.Connect(viewerID, payload.UserID, payload.DisplayName, conn)
			*connected = true
		}
		return s.hub.Join(viewerID, payload.SessionID)

	case "leave-stream":
		var payload joinPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		s.hub.Leave(viewerID, payload.SessionID)
		return nil

	case "chat-message":
		var payload chatPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		if err := validation.ValidateChatBody(payload.Body, domain.ChatMessageMaxLen); err != nil {
			return err
		}
		_, err := s.hub.PostMessage(viewerID, payload.SessionID, payload.Body)
		return err

	default:
		return errors.New("unknown message type: " + msg.Type)
	}
}

func (s *Server) cleanup(viewerID domain.PeerID) {
	s.hub.Disconnect(viewerID)
	s.logger.Infow("viewer disconnected", "viewer_id", viewerID)
}

func (s *Server) sendError(conn *websocket.Conn, err error) {
	conn.WriteJSON(Event{Type: "error", Payload: map[string]interface{}{
		"message": err.Error(),
	}})
}
