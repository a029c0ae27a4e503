package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/hangout/realtime"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewPacket encodes payload into a Packet. A nil payload is omitted.
func NewPacket(msgType string, payload interface{}) (*Packet, error) {
	pkt := &Packet{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		pkt.Payload = raw
	}
	return pkt, nil
}

// Session is one attached WebSocket connection. A user may hold several.
type Session struct {
	ID     string
	UserID int64
	Role   string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu     sync.Mutex
	stream *realtime.Stream
	unsubs []func()
	once   sync.Once
	logger *zap.Logger
}

// NewSession creates a Session. The write goroutine starts only when conn
// is non-nil.
func NewSession(userID int64, role string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Role:     role,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.Int64("user_id", s.UserID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SetReadDeadline extends the read deadline after any inbound traffic.
func (s *Session) SetReadDeadline() {
	if s.Conn != nil {
		_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	}
}

// Send encodes pkt and queues it. Drops if the queue is full or closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.Int64("user_id", s.UserID),
			zap.String("type", pkt.Type))
	}
}

// Reply sends a packet built from msgType and payload.
func (s *Session) Reply(msgType string, payload interface{}) {
	pkt, err := NewPacket(msgType, payload)
	if err != nil {
		s.logger.Error("encode packet failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	s.Send(pkt)
}

// SendEvent forwards a realtime event as a packet named after its type.
func (s *Session) SendEvent(ev *realtime.Event) {
	s.Reply(ev.Type, ev)
}

// Attach binds the session to its event stream and forwards the stream's
// events until either side closes.
func (s *Session) Attach(st *realtime.Stream) {
	s.mu.Lock()
	s.stream = st
	s.mu.Unlock()
	s.Track(st.Close)
	go func() {
		for ev := range st.Events() {
			s.SendEvent(ev)
		}
	}()
}

// Stream returns the attached stream, or nil.
func (s *Session) Stream() *realtime.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Track registers a subscription cancel func to run on Close. After Close
// it runs immediately.
func (s *Session) Track(unsub func()) {
	s.mu.Lock()
	if s.IsClosed() {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// Close signals the writePump to shut down and drops every subscription.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.Done)
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()
		for _, fn := range unsubs {
			fn()
		}
	})
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}
