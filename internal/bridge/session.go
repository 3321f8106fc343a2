package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Session is one client connection. Commands on a session run one at a time
// in arrival order.
type Session struct {
	id   string
	conn *websocket.Conn
	srv  *Server

	writeMu sync.Mutex
}

func newSession(conn *websocket.Conn, srv *Server) *Session {
	return &Session{
		id:   uuid.NewString(),
		conn: conn,
		srv:  srv,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Serve reads commands until the client leaves, a transport error occurs or
// ctx is cancelled. Errors end only this session.
func (s *Session) Serve(ctx context.Context) {
	defer s.conn.Close()
	if !s.srv.track(s) {
		return
	}
	defer s.srv.untrack(s)
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	log := s.srv.log.With(zap.String("session", s.id))
	log.Debug("session opened", zap.Stringer("remote", s.conn.RemoteAddr()))

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("session read failed", zap.Error(err))
			}
			log.Debug("session closed")
			return
		}

		var (
			reply any
			quit  bool
		)
		if kind == websocket.TextMessage {
			reply, quit = s.srv.handler.Handle(ctx, string(data))
		} else {
			reply = Failure{Error: msgInvalidCommand}
		}
		if err := s.send(reply); err != nil {
			log.Debug("session write failed", zap.Error(err))
			return
		}
		if quit {
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, msgBye),
				time.Now().Add(time.Second),
			)
			log.Debug("session quit")
			return
		}
	}
}

func (s *Session) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
