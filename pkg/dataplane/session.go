package dataplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/flowrule"
)

// Session is one switch control channel.
type Session interface {
	SwitchID() uint64
	InstallRule(ctx context.Context, r flowrule.Rule) error
	Close() error
}

// wsSession wraps a websocket connection to a switch. Reads happen on a
// single loop; writes are serialized by a mutex so install commands and
// nothing else interleave frames.
type wsSession struct {
	id   uint64
	conn *websocket.Conn

	writeMu sync.Mutex

	ackMu sync.Mutex
	acks  map[string]chan ackPayload

	// handlers tracks in-flight packet-in goroutines so shutdown can
	// drain them.
	handlers sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id uint64, conn *websocket.Conn) *wsSession {
	return &wsSession{
		id:     id,
		conn:   conn,
		acks:   make(map[string]chan ackPayload),
		closed: make(chan struct{}),
	}
}

func (s *wsSession) SwitchID() uint64 {
	return s.id
}

// InstallRule sends the rule and blocks until the switch acks, the
// context expires, or the session dies.
func (s *wsSession) InstallRule(ctx context.Context, r flowrule.Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding rule: %w", err)
	}

	msgID := uuid.NewString()
	ch := make(chan ackPayload, 1)

	s.ackMu.Lock()
	s.acks[msgID] = ch
	s.ackMu.Unlock()
	defer func() {
		s.ackMu.Lock()
		delete(s.acks, msgID)
		s.ackMu.Unlock()
	}()

	if err := s.writeJSON(Message{Type: MsgInstallRule, ID: msgID, Data: data}); err != nil {
		return fmt.Errorf("sending rule to switch %d: %w", s.id, err)
	}

	select {
	case ack := <-ch:
		if !ack.OK {
			return fmt.Errorf("switch %d rejected rule: %s", s.id, ack.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for install ack from switch %d: %w", s.id, ctx.Err())
	case <-s.closed:
		return fmt.Errorf("session to switch %d closed", s.id)
	}
}

// Close tears the connection down and unblocks pending installs.
func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}

func (s *wsSession) writeJSON(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) deliverAck(msgID string, ack ackPayload) {
	s.ackMu.Lock()
	ch, ok := s.acks[msgID]
	s.ackMu.Unlock()
	if !ok {
		log.Debugf("Switch %d: ack for unknown message %s", s.id, msgID)
		return
	}
	ch <- ack
}

// readLoop decodes frames until the connection drops. Packet-ins are
// handled on their own goroutine because the install they trigger
// blocks on an ack this loop has to read.
func (s *wsSession) readLoop(d *Dispatcher) {
	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("Switch %d: read error: %v", s.id, err)
			}
			return
		}

		switch msg.Type {
		case MsgAck:
			var ack ackPayload
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				log.Warnf("Switch %d: malformed ack: %v", s.id, err)
				continue
			}
			s.deliverAck(msg.ID, ack)

		case MsgPacketIn:
			var p PacketIn
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				log.Warnf("Switch %d: malformed packet_in: %v", s.id, err)
				continue
			}
			p.SwitchID = s.id
			s.handlers.Add(1)
			go func(p PacketIn) {
				defer s.handlers.Done()
				d.HandlePacketIn(context.Background(), p)
			}(p)

		case MsgStatsReply:
			var sr StatsReply
			if err := json.Unmarshal(msg.Data, &sr); err != nil {
				log.Warnf("Switch %d: malformed stats_reply: %v", s.id, err)
				continue
			}
			sr.SwitchID = s.id
			d.HandleStats(sr)

		default:
			log.Debugf("Switch %d: unknown message type %q", s.id, msg.Type)
		}
	}
}
