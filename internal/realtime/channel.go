package realtime

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Channel names.
const (
	ChannelOrganization = "organization"
	ChannelSession      = "session"
)

const (
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

// ChannelState is the lifecycle state of a channel.
type ChannelState int

const (
	StateClosed ChannelState = iota
	StateConnecting
	StateOpen
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

func (s ChannelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ChannelInfo identifies a channel in lifecycle callbacks.
type ChannelInfo struct {
	ID        string       `json:"id"` // stable across reconnects
	Name      string       `json:"name"`
	SessionID string       `json:"sessionID,omitempty"`
	URL       string       `json:"url"`
	State     ChannelState `json:"state"`
	Attempt   int          `json:"attempt"` // consecutive failed attempts before this event
}

// ChannelError is a transport failure on a channel.
type ChannelError struct {
	Channel string
	Op      string // dial, read, resync
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel %s: %v", e.Channel, e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// DispatchFunc receives raw frames on the event loop.
type DispatchFunc func(frame []byte)

// ChannelSpec says where a channel's frames go.
type ChannelSpec struct {
	Dispatch DispatchFunc
	Resync   ResyncFunc // optional
}

// channel is owned by the manager loop; only the loop touches its fields.
type channel struct {
	info    ChannelInfo
	spec    ChannelSpec
	conn    *websocket.Conn
	gen     int           // incremented on every dial
	done    chan struct{} // closed on explicit close
	backoff *backoff.ExponentialBackOff
	retry   *time.Timer

	resyncing bool
	pending   [][]byte
}

func newChannel(name, sessionID, url string, spec ChannelSpec, policy ReconnectPolicy) *channel {
	return &channel{
		info: ChannelInfo{
			ID:        uuid.New().String(),
			Name:      name,
			SessionID: sessionID,
			URL:       url,
		},
		spec:    spec,
		done:    make(chan struct{}),
		backoff: policy.newBackOff(),
	}
}

func (c *channel) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump forwards frames from one connection to the loop until the
// connection fails or the channel is closed.
func (m *Manager) readPump(ch *channel, gen int, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)

	if m.opts.ReadLimit > 0 {
		conn.SetReadLimit(m.opts.ReadLimit)
	}
	if m.opts.PingInterval > 0 {
		pongWait := 2 * m.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go m.keepalive(conn, stop)
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			m.deliver(ch, connLost{ch: ch, gen: gen, err: err})
			return
		}
		if m.opts.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * m.opts.PingInterval))
		}
		if typ != websocket.TextMessage {
			m.logger.Debug("ignoring non-text frame", zap.String("channel", ch.info.Name), zap.Int("type", typ))
			continue
		}
		if !m.deliver(ch, frameReceived{ch: ch, gen: gen, data: data}) {
			return
		}
	}
}

func (m *Manager) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	_ = conn.Close()
}
