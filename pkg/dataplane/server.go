package dataplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/flowrule"
)

// helloTimeout bounds how long a fresh connection may stall before
// identifying itself.
const helloTimeout = 5 * time.Second

// Server accepts switch control connections over websocket and routes
// rule installs to the session owning the target switch.
type Server struct {
	addr       string
	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	dispatcher *Dispatcher

	mu       sync.Mutex
	sessions map[uint64]*wsSession
	draining bool

	wg sync.WaitGroup
}

// NewServer creates the southbound listener. SetDispatcher must be
// called before Start.
func NewServer(addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     addr,
		router:   router,
		sessions: make(map[uint64]*wsSession),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.GET("/southbound", s.handleSwitch)
	return s
}

// SetDispatcher wires the event dispatcher. Split from NewServer because
// the rule manager needs the server as its installer before the
// dispatcher exists.
func (s *Server) SetDispatcher(d *Dispatcher) {
	s.dispatcher = d
}

// Start begins accepting switch connections in a background goroutine.
func (s *Server) Start() error {
	if s.dispatcher == nil {
		return fmt.Errorf("no dispatcher configured")
	}

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	log.Infof("Starting southbound listener on %s", s.addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start southbound listener: %v", err)
		}
	}()

	return nil
}

// Stop stops accepting connections, closes every session, and waits for
// in-flight handlers to drain.
func (s *Server) Stop() error {
	log.Info("Shutting down southbound listener...")

	s.mu.Lock()
	s.draining = true
	open := make([]*wsSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorf("Southbound listener forced to shutdown: %v", err)
			return err
		}
	}

	s.wg.Wait()
	log.Info("Southbound listener stopped gracefully")
	return nil
}

// InstallRule routes a rule to the session of its owning switch.
func (s *Server) InstallRule(ctx context.Context, r flowrule.Rule) error {
	s.mu.Lock()
	sess, ok := s.sessions[r.SwitchID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("switch %d not connected", r.SwitchID)
	}
	return sess.InstallRule(ctx, r)
}

// SessionCount reports how many switches are currently connected.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSwitch(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Switch connection upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.serveConn(conn)
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != MsgHello {
		log.Warnf("Switch handshake failed from %s", conn.RemoteAddr())
		return
	}
	conn.SetReadDeadline(time.Time{})

	var hello helloPayload
	if err := unmarshalHello(msg, &hello); err != nil {
		log.Warnf("Malformed hello from %s: %v", conn.RemoteAddr(), err)
		return
	}

	sess := newSession(hello.SwitchID, conn)

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	// A reconnect replaces the stale session.
	if old, ok := s.sessions[hello.SwitchID]; ok {
		old.Close()
	}
	s.sessions[hello.SwitchID] = sess
	s.mu.Unlock()

	s.dispatcher.HandleConnect(hello.SwitchID, hello.Ports)

	sess.readLoop(s.dispatcher)

	// Closing first unblocks handlers waiting on acks; then wait for
	// them so nothing outlives the server's shutdown.
	sess.Close()
	sess.handlers.Wait()
	s.mu.Lock()
	if s.sessions[hello.SwitchID] == sess {
		delete(s.sessions, hello.SwitchID)
	}
	replaced := s.sessions[hello.SwitchID] != nil
	s.mu.Unlock()

	// A replaced session's exit must not mark the new one down.
	if !replaced {
		s.dispatcher.HandleDisconnect(hello.SwitchID)
	}
}

func unmarshalHello(msg Message, hello *helloPayload) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("empty hello payload")
	}
	if err := json.Unmarshal(msg.Data, hello); err != nil {
		return err
	}
	if hello.SwitchID == 0 {
		return fmt.Errorf("missing switch_id")
	}
	return nil
}
