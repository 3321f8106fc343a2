// Package bridge serves the local command connections. Clients connect over
// a websocket and send one command line per text message; each command gets
// exactly one JSON reply.
package bridge

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DobryySoul/recipeshare/internal/telemetry"
)

var ErrServerClosed = errors.New("bridge: server closed")

const handoffTimeout = 5 * time.Second

// Server accepts command connections and hands each one out as a Session.
// Sessions are not served until the owner takes them from Sessions().
type Server struct {
	handler  *Handler
	log      *zap.Logger
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader

	sessions  chan *Session
	handoff   time.Duration
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	live map[*Session]struct{}

	http *http.Server
	ln   net.Listener
}

func NewServer(handler *Handler, log *zap.Logger, metrics *telemetry.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		handler: handler,
		log:     log,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the listener is local; browser pages opened from disk send a null origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(chan *Session),
		handoff:  handoffTimeout,
		done:     make(chan struct{}),
		live:     make(map[*Session]struct{}),
	}

	r := mux.NewRouter()
	r.Methods(http.MethodGet).Path("/").HandlerFunc(s.accept)
	r.Methods(http.MethodGet).Path("/healthz").Handler(s.logged(http.HandlerFunc(healthz)))
	if metrics != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(s.logged(metrics.Handler()))
	}
	s.http = &http.Server{Handler: r}
	return s
}

// Listen binds addr. Call Serve afterwards.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve blocks until Close. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("bridge: serve before listen")
	}
	err := s.http.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Sessions delivers every accepted connection. A connection that is not taken
// within the handoff timeout is closed with "try again later".
func (s *Server) Sessions() <-chan *Session {
	return s.sessions
}

// Close stops accepting connections and closes the open ones.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.http.Close()
		s.mu.Lock()
		for sess := range s.live {
			_ = sess.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// Broadcast sends v to every open session. Failed sends are logged and the
// session is left to its reader to clean up.
func (s *Server) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encode broadcast", zap.Error(err))
		return
	}
	s.mu.Lock()
	targets := make([]*Session, 0, len(s.live))
	for sess := range s.live {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := sess.write(data); err != nil {
			s.log.Debug("broadcast failed", zap.String("session", sess.id), zap.Error(err))
		}
	}
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	sess := newSession(conn, s)
	timer := time.NewTimer(s.handoff)
	defer timer.Stop()
	select {
	case s.sessions <- sess:
	case <-timer.C:
		s.log.Warn("no one took the session", zap.String("session", sess.id))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "node not ready"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	case <-s.done:
		_ = conn.Close()
	}
}

func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.live[sess] = struct{}{}
	s.metrics.SessionOpened()
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	if _, ok := s.live[sess]; ok {
		delete(s.live, sess)
		s.metrics.SessionClosed()
	}
	s.mu.Unlock()
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Debug("handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Duration("duration", m.Duration),
		)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
