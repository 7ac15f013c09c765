package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/utils"
	"streamcast/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
}

type configPayload struct {
	Target       string `json:"target,omitempty"`
	VideoBitrate int    `json:"videoBitrate"`
	AudioBitrate int    `json:"audioBitrate"`
}

// Server accepts broadcaster connections on the ingest endpoint. Text
// frames carry JSON control messages, binary frames carry media bytes.
type Server struct {
	gateway ports.CredentialGateway
	deps    SessionDeps
	logger  *zap.SugaredLogger
	open    atomic.Int64

	defaultVideoKbps int
	defaultAudioKbps int
	tickInterval     time.Duration
	readTimeout      time.Duration
	pingInterval     time.Duration
	writeTimeout     time.Duration
}

func NewServer(
	gateway ports.CredentialGateway,
	deps SessionDeps,
	defaultVideoKbps, defaultAudioKbps int,
	tickInterval, pingInterval, readTimeout, writeTimeout time.Duration,
	logger *zap.SugaredLogger,
) *Server {
	return &Server{
		gateway:          gateway,
		deps:             deps,
		logger:           logger,
		defaultVideoKbps: defaultVideoKbps,
		defaultAudioKbps: defaultAudioKbps,
		tickInterval:     tickInterval,
		pingInterval:     pingInterval,
		readTimeout:      readTimeout,
		writeTimeout:     writeTimeout,
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.open.Add(1)
	defer s.open.Add(-1)

	key := domain.StreamKey(r.URL.Query().Get("key"))
	if err := validation.ValidateStreamKey(string(key)); err != nil {
		s.writeError(conn, err)
		return
	}

	cred, err := s.gateway.Validate(r.Context(), key)
	if err != nil {
		s.logger.Infow("publish rejected", "stream_key", key, "error", err)
		s.deps.Collector.RecordRejectedPublish()
		s.writeError(conn, err)
		return
	}

	session, err := NewSession(domain.SessionID(utils.GenerateSessionID()), cred, domain.SourceRelay, conn, s.deps)
	if err != nil {
		s.logger.Infow("publish rejected", "stream_key", key, "error", err)
		s.deps.Collector.RecordRejectedPublish()
		s.writeError(conn, err)
		return
	}
	defer session.End()

	s.logger.Infow("broadcaster connected",
		"session_id", session.ID(),
		"stream_key", key,
	)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("broadcaster read error", "stream_key", key, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		switch msgType {
		case websocket.BinaryMessage:
			session.HandleMedia(data)

		case websocket.TextMessage:
			if done := s.handleControl(r.Context(), session, conn, data); done {
				return
			}
		}
	}
}

// handleControl processes one JSON control frame. Returns true when the
// session is over and the read loop should exit.
func (s *Server) handleControl(ctx context.Context, session *Session, conn *websocket.Conn, data []byte) bool {
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.writeError(conn, err)
		return false
	}

	switch msg.Type {
	case "config":
		var payload configPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.writeError(conn, err)
			return false
		}
		if payload.Target != "" {
			if err := validation.ValidateTargetURL(payload.Target); err != nil {
				s.writeError(conn, err)
				return false
			}
		}
		video := payload.VideoBitrate
		if video == 0 {
			video = s.defaultVideoKbps
		}
		audio := payload.AudioBitrate
		if audio == 0 {
			audio = s.defaultAudioKbps
		}
		if err := validation.ValidateBitrate(video); err != nil {
			s.writeError(conn, err)
			return false
		}
		if err := session.Configure(ctx, video, audio, s.tickInterval); err != nil {
			s.writeError(conn, err)
			return true
		}
		return false

	case "end":
		session.End()
		return true

	default:
		s.writeError(conn, errors.New("unknown message type: "+msg.Type))
		return false
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// OpenConnections reports the current broadcaster transport count.
func (s *Server) OpenConnections() int {
	return int(s.open.Load())
}

func (s *Server) writeError(conn *websocket.Conn, err error) {
	conn.WriteJSON(Event{Type: "error", Payload: map[string]interface{}{
		"message": err.Error(),
	}})
}
