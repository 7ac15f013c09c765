package publish

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/ingest"
	"streamcast/pkg/utils"

	"go.uber.org/zap"
)

const maxFrameSize = 4 << 20

// Server accepts raw TCP publishers speaking a line-delimited JSON command
// protocol. After a publish is accepted, media arrives as length-prefixed
// binary frames; a zero-length frame returns the connection to command
// mode.
type Server struct {
	addr      string
	app       string
	gateway   ports.CredentialGateway
	deps      ingest.SessionDeps
	tick      time.Duration
	videoKbps int
	audioKbps int
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	plays    map[domain.SessionID]int
	closed   bool
}

type command struct {
	Command string `json:"command"`
	Path    string `json:"path"`
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Key     string `json:"key,omitempty"`
}

func NewServer(addr, app string, gateway ports.CredentialGateway, deps ingest.SessionDeps, tick time.Duration, videoKbps, audioKbps int, logger *zap.SugaredLogger) *Server {
	return &Server{
		addr:      addr,
		app:       app,
		gateway:   gateway,
		deps:      deps,
		tick:      tick,
		videoKbps: videoKbps,
		audioKbps: audioKbps,
		logger:    logger,
		conns:     make(map[net.Conn]struct{}),
		plays:     make(map[domain.SessionID]int),
	}
}

// ListenAndServe blocks accepting publisher connections until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("publish listen: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infow("publish server listening", "address", s.addr, "app", s.app)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("publish accept: %w", err)
		}
		s.track(conn, true)
		go s.handleConn(conn)
	}
}

// Close stops the listener and closes every open publisher connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// OpenConnections reports the current publisher connection count.
func (s *Server) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.track(conn, false)

	reader := bufio.NewReader(conn)
	writer := &lineWriter{conn: conn}

	var session *ingest.Session
	var playing []domain.SessionID
	defer func() {
		if session != nil {
			session.End()
		}
		for _, sid := range playing {
			s.stopWatching(sid)
		}
	}()

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.logger.Debugw("publish read error", "error", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var cmd command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			writer.send(response{Status: "error", Message: "malformed command"})
			continue
		}

		switch cmd.Command {
		case "publish":
			if session != nil {
				writer.send(response{Status: "error", Message: "already publishing"})
				continue
			}
			sess, err := s.startPublish(conn, writer, cmd.Path)
			if err != nil {
				writer.send(response{Status: "error", Message: err.Error()})
				return
			}
			session = sess
			writer.send(response{Status: "ok", Key: string(sess.Key())})

			if err := s.pumpFrames(reader, sess); err != nil {
				s.logger.Debugw("publish frame pump ended", "stream_key", sess.Key(), "error", err)
				return
			}
			// A zero-length frame ended the session cleanly; the
			// connection may publish again.
			session = nil

		case "unpublish":
			if session == nil {
				writer.send(response{Status: "error", Message: "not publishing"})
				continue
			}
			session.End()
			session = nil
			writer.send(response{Status: "ok"})

		case "play":
			sid, err := s.startWatching(cmd.Path)
			if err != nil {
				writer.send(response{Status: "error", Message: err.Error()})
				continue
			}
			playing = append(playing, sid)
			writer.send(response{Status: "ok"})

		case "stop":
			if len(playing) == 0 {
				writer.send(response{Status: "error", Message: "not playing"})
				continue
			}
			sid := playing[len(playing)-1]
			playing = playing[:len(playing)-1]
			s.stopWatching(sid)
			writer.send(response{Status: "ok"})

		default:
			writer.send(response{Status: "error", Message: "unknown command: " + cmd.Command})
		}
	}
}

// startPublish validates the path and key and creates the session. A
// duplicate live key is rejected here with the registry untouched.
func (s *Server) startPublish(conn net.Conn, writer *lineWriter, path string) (*ingest.Session, error) {
	key, err := s.parsePath(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cred, err := s.gateway.Validate(ctx, key)
	if err != nil {
		s.logger.Infow("publish rejected", "path", path, "error", err)
		s.deps.Collector.RecordRejectedPublish()
		return nil, err
	}

	sess, err := ingest.NewSession(
		domain.SessionID(utils.GenerateSessionID()),
		cred,
		domain.SourceRtmpRelay,
		writer,
		s.deps,
	)
	if err != nil {
		s.logger.Infow("publish rejected", "path", path, "error", err)
		s.deps.Collector.RecordRejectedPublish()
		return nil, err
	}

	if err := sess.Configure(ctx, s.videoKbps, s.audioKbps, s.tick); err != nil {
		return nil, err
	}

	s.logger.Infow("tcp publisher live",
		"session_id", sess.ID(),
		"stream_key", key,
		"remote", conn.RemoteAddr(),
	)
	return sess, nil
}

// pumpFrames reads length-prefixed media frames until a zero-length frame
// or a transport error.
func (s *Server) pumpFrames(reader *bufio.Reader, sess *ingest.Session) error {
	var header [4]byte
	for {
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			return err
		}
		size := binary.BigEndian.Uint32(header[:])
		if size == 0 {
			sess.End()
			return nil
		}
		if size > maxFrameSize {
			return fmt.Errorf("frame of %d bytes exceeds limit", size)
		}

		frame := make([]byte, size)
		if _, err := io.ReadFull(reader, frame); err != nil {
			return err
		}
		sess.HandleMedia(frame)
	}
}

// startWatching counts one more play of the session on this server and
// reports the pull-side cardinality; the fanout hub owns the merged total.
func (s *Server) startWatching(path string) (domain.SessionID, error) {
	key, err := s.parsePath(path)
	if err != nil {
		return "", err
	}
	session, ok := s.deps.Registry.Get(key)
	if !ok || session.Status != domain.StatusLive {
		return "", domain.ErrStreamNotFound
	}

	s.mu.Lock()
	s.plays[session.ID]++
	count := s.plays[session.ID]
	s.mu.Unlock()

	s.deps.Notifier.ViewerCountChanged(session.ID, domain.OriginPull, count)
	return session.ID, nil
}

func (s *Server) stopWatching(sessionID domain.SessionID) {
	s.mu.Lock()
	count := s.plays[sessionID] - 1
	if count <= 0 {
		count = 0
		delete(s.plays, sessionID)
	} else {
		s.plays[sessionID] = count
	}
	s.mu.Unlock()

	s.deps.Notifier.ViewerCountChanged(sessionID, domain.OriginPull, count)
}

// parsePath splits "<app>/<key>" and checks the app segment.
func (s *Server) parsePath(path string) (domain.StreamKey, error) {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("malformed path %q, want <app>/<key>", path)
	}
	if parts[0] != s.app {
		return "", fmt.Errorf("unknown application %q", parts[0])
	}
	return domain.StreamKey(parts[1]), nil
}

// lineWriter serializes JSON events as lines on the TCP connection. It
// doubles as the session's control-message sender.
type lineWriter struct {
	conn net.Conn
	mu   sync.Mutex
}

func (w *lineWriter) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.conn.Write(append(data, '\n'))
	return err
}

func (w *lineWriter) send(r response) {
	_ = w.WriteJSON(r)
}
