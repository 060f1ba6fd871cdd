// Package realtime owns the live channels of a classroom page: the
// organization-wide channel and the per-session channel. All frames, lifecycle
// callbacks and posted tasks run on a single event-loop goroutine, so the
// state they drive needs no locking.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/config"
)

// ErrManagerClosed is returned by calls made after Close.
var ErrManagerClosed = errors.New("realtime: manager closed")

const (
	inboxSize     = 64
	resyncTimeout = 30 * time.Second
)

// Lifecycle callbacks report channel transitions. They run on the event loop
// and a panic inside one is logged, never propagated.
type Lifecycle struct {
	OnOpen  func(ChannelInfo)
	OnClose func(ChannelInfo)
	OnError func(ChannelInfo, error)
}

// Endpoints are the websocket URLs of the two channels.
type Endpoints struct {
	Organization string
	Session      func(sessionID string) string
}

// EndpointsFromConfig builds endpoints from the server and channel settings.
func EndpointsFromConfig(cfg *config.Config) (Endpoints, error) {
	org, err := cfg.Server.WebsocketURL(cfg.Channel.OrganizationPath)
	if err != nil {
		return Endpoints{}, fmt.Errorf("organization endpoint: %w", err)
	}
	sessionBase, err := cfg.Server.WebsocketURL(cfg.Channel.SessionPath)
	if err != nil {
		return Endpoints{}, fmt.Errorf("session endpoint: %w", err)
	}
	return Endpoints{
		Organization: org,
		Session:      func(id string) string { return sessionBase + url.PathEscape(id) },
	}, nil
}

// Options configure a Manager.
type Options struct {
	Logger       *zap.Logger
	Dialer       *websocket.Dialer
	Header       http.Header // sent with every handshake, e.g. Cookie
	ReadLimit    int64
	PingInterval time.Duration // 0 disables keepalive pings
	Reconnect    ReconnectPolicy
	Lifecycle    Lifecycle
}

// OptionsFromConfig maps configuration to manager options.
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger) Options {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.Channel.HandshakeTimeout
	header := http.Header{}
	if cfg.Server.AuthCookie != "" {
		header.Set("Cookie", cfg.Server.AuthCookie)
	}
	return Options{
		Logger:       logger,
		Dialer:       &dialer,
		Header:       header,
		ReadLimit:    cfg.Channel.ReadLimit,
		PingInterval: cfg.Channel.PingInterval,
		Reconnect:    ReconnectPolicyFromConfig(cfg.Reconnect),
	}
}

// Manager establishes and tears down channels and runs the event loop.
type Manager struct {
	endpoints Endpoints
	opts      Options
	logger    *zap.Logger

	inbox   chan message
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	// owned by the loop
	channels map[string]*channel
}

// NewManager starts the event loop. It stops when parent is cancelled or
// Close is called.
func NewManager(parent context.Context, endpoints Endpoints, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		endpoints: endpoints,
		opts:      opts,
		logger:    opts.Logger,
		inbox:     make(chan message, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		channels:  make(map[string]*channel),
	}
	go m.loop()
	return m
}

// OpenOrganizationChannel opens the organization channel. It is a no-op while
// the channel is open, connecting or waiting to reconnect.
func (m *Manager) OpenOrganizationChannel(spec ChannelSpec) error {
	return m.request(func(reply chan error) message {
		return openRequest{name: ChannelOrganization, spec: spec, reply: reply}
	})
}

// OpenSessionChannel opens the channel of sessionID, closing any session
// channel opened before it.
func (m *Manager) OpenSessionChannel(sessionID string, spec ChannelSpec) error {
	if sessionID == "" {
		return errors.New("realtime: empty session id")
	}
	return m.request(func(reply chan error) message {
		return openRequest{name: ChannelSession, sessionID: sessionID, spec: spec, reply: reply}
	})
}

// CloseChannel closes the named channel and cancels any pending reconnect.
func (m *Manager) CloseChannel(name string) error {
	return m.request(func(reply chan error) message {
		return closeRequest{name: name, reply: reply}
	})
}

// Channel reports the current state of the named channel.
func (m *Manager) Channel(name string) ChannelInfo {
	reply := make(chan ChannelInfo, 1)
	if err := m.send(stateRequest{name: name, reply: reply}); err != nil {
		return ChannelInfo{Name: name, State: StateClosed}
	}
	select {
	case info := <-reply:
		return info
	case <-m.stopped:
		return ChannelInfo{Name: name, State: StateClosed}
	}
}

// Post runs fn on the event loop. It must not be called from the loop itself
// when the inbox may be full; continuation callbacks and timers use it.
func (m *Manager) Post(fn func()) error {
	return m.send(task{fn: fn})
}

// Close closes every channel and stops the loop.
func (m *Manager) Close() {
	m.cancel()
	<-m.stopped
}

// Done is closed once the loop has stopped.
func (m *Manager) Done() <-chan struct{} { return m.stopped }

func (m *Manager) send(msg message) error {
	select {
	case <-m.ctx.Done():
		return ErrManagerClosed
	default:
	}
	select {
	case m.inbox <- msg:
		return nil
	case <-m.ctx.Done():
		return ErrManagerClosed
	}
}

func (m *Manager) request(build func(reply chan error) message) error {
	reply := make(chan error, 1)
	if err := m.send(build(reply)); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return ErrManagerClosed
	}
}

// deliver hands a message from a channel goroutine to the loop. It gives up
// when the channel was closed explicitly or the manager stopped.
func (m *Manager) deliver(ch *channel, msg message) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-ch.done:
		return false
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Manager) handle(msg message) {
	switch msg := msg.(type) {
	case openRequest:
		msg.reply <- m.open(msg)

	case closeRequest:
		if ch := m.channels[msg.name]; ch != nil {
			m.closeChannel(ch)
			delete(m.channels, msg.name)
		}
		msg.reply <- nil

	case stateRequest:
		info := ChannelInfo{Name: msg.name, State: StateClosed}
		if ch := m.channels[msg.name]; ch != nil {
			info = ch.info
		}
		msg.reply <- info

	case task:
		m.guard("task", msg.fn)

	case dialed:
		if m.stale(msg.ch, msg.gen) {
			if msg.conn != nil {
				_ = msg.conn.Close()
			}
			return
		}
		if msg.err != nil {
			m.fail(msg.ch, "dial", msg.err)
			return
		}
		m.opened(msg.ch, msg.conn)

	case frameReceived:
		if m.stale(msg.ch, msg.gen) {
			m.logger.Debug("dropping frame from stale connection", zap.String("channel", msg.ch.info.Name))
			return
		}
		if msg.ch.resyncing {
			msg.ch.pending = append(msg.ch.pending, msg.data)
			return
		}
		m.dispatch(msg.ch, msg.data)

	case connLost:
		if m.stale(msg.ch, msg.gen) {
			return
		}
		if msg.ch.conn != nil {
			_ = msg.ch.conn.Close()
			msg.ch.conn = nil
		}
		m.fail(msg.ch, "read", msg.err)

	case redial:
		if m.stale(msg.ch, msg.gen) {
			return
		}
		msg.ch.retry = nil
		m.dial(msg.ch)

	case resynced:
		if m.stale(msg.ch, msg.gen) {
			return
		}
		m.finishResync(msg)
	}
}

func (m *Manager) open(req openRequest) error {
	var target string
	switch req.name {
	case ChannelOrganization:
		if ch := m.channels[ChannelOrganization]; ch != nil && ch.active() {
			m.logger.Debug("organization channel already open")
			return nil
		}
		target = m.endpoints.Organization
	case ChannelSession:
		if prior := m.channels[ChannelSession]; prior != nil {
			m.closeChannel(prior)
			delete(m.channels, ChannelSession)
		}
		if m.endpoints.Session != nil {
			target = m.endpoints.Session(req.sessionID)
		}
	default:
		return fmt.Errorf("realtime: unknown channel %q", req.name)
	}
	if target == "" {
		return fmt.Errorf("realtime: no endpoint for %s channel", req.name)
	}

	ch := newChannel(req.name, req.sessionID, target, req.spec, m.opts.Reconnect)
	m.channels[req.name] = ch
	m.dial(ch)
	return nil
}

func (m *Manager) dial(ch *channel) {
	ch.gen++
	gen := ch.gen
	ch.info.State = StateConnecting
	ch.resyncing = false
	ch.pending = nil

	target, header, dialer := ch.info.URL, m.opts.Header, m.opts.Dialer
	m.logger.Info("dialing channel",
		zap.String("channel", ch.info.Name),
		zap.String("url", target),
		zap.Int("attempt", ch.info.Attempt),
	)
	go func() {
		conn, resp, err := dialer.DialContext(m.ctx, target, header)
		if err != nil && resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		if !m.deliver(ch, dialed{ch: ch, gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) opened(ch *channel, conn *websocket.Conn) {
	ch.conn = conn
	ch.info.State = StateOpen
	m.logger.Info("channel open",
		zap.String("channel", ch.info.Name),
		zap.String("channel_id", ch.info.ID),
		zap.String("session_id", ch.info.SessionID),
	)
	m.notify("on_open", func() {
		if m.opts.Lifecycle.OnOpen != nil {
			m.opts.Lifecycle.OnOpen(ch.info)
		}
	})
	ch.info.Attempt = 0
	ch.backoff.Reset()

	gen := ch.gen
	if ch.spec.Resync != nil {
		ch.resyncing = true
		go m.resync(ch, gen)
	}
	go m.readPump(ch, gen, conn)
}

func (m *Manager) resync(ch *channel, gen int) {
	ctx, cancel := context.WithTimeout(m.ctx, resyncTimeout)
	defer cancel()
	apply, err := ch.spec.Resync(ctx)
	m.deliver(ch, resynced{ch: ch, gen: gen, apply: apply, err: err})
}

func (m *Manager) finishResync(msg resynced) {
	ch := msg.ch
	ch.resyncing = false
	if msg.err != nil {
		cerr := &ChannelError{Channel: ch.info.Name, Op: "resync", Err: msg.err}
		m.logger.Warn("resync failed", zap.String("channel", ch.info.Name), zap.Error(msg.err))
		m.notify("on_error", func() {
			if m.opts.Lifecycle.OnError != nil {
				m.opts.Lifecycle.OnError(ch.info, cerr)
			}
		})
	} else if msg.apply != nil {
		m.guard("resync", msg.apply)
	}

	pending := ch.pending
	ch.pending = nil
	if len(pending) > 0 {
		m.logger.Debug("replaying frames received during resync", zap.String("channel", ch.info.Name), zap.Int("frames", len(pending)))
	}
	for _, frame := range pending {
		if m.stale(ch, msg.gen) {
			return
		}
		m.dispatch(ch, frame)
	}
}

// fail moves a channel to Closed after a transport error and schedules a
// reconnect when the policy allows one.
func (m *Manager) fail(ch *channel, op string, err error) {
	wasOpen := ch.info.State == StateOpen
	ch.info.State = StateClosed
	ch.gen++ // an in-flight resync belongs to the lost connection
	ch.resyncing = false
	ch.pending = nil

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Info("channel closed by server", zap.String("channel", ch.info.Name), zap.Error(err))
	} else {
		cerr := &ChannelError{Channel: ch.info.Name, Op: op, Err: err}
		m.logger.Warn("channel error", zap.String("channel", ch.info.Name), zap.String("op", op), zap.Error(err))
		m.notify("on_error", func() {
			if m.opts.Lifecycle.OnError != nil {
				m.opts.Lifecycle.OnError(ch.info, cerr)
			}
		})
	}
	if wasOpen {
		m.notify("on_close", func() {
			if m.opts.Lifecycle.OnClose != nil {
				m.opts.Lifecycle.OnClose(ch.info)
			}
		})
	}

	ch.info.Attempt++
	delay, ok := m.opts.Reconnect.next(ch.backoff, ch.info.Attempt)
	if !ok {
		m.logger.Info("channel closed, not reconnecting", zap.String("channel", ch.info.Name), zap.Int("attempt", ch.info.Attempt))
		return
	}
	gen := ch.gen
	m.logger.Info("reconnect scheduled", zap.String("channel", ch.info.Name), zap.Duration("delay", delay), zap.Int("attempt", ch.info.Attempt))
	ch.retry = time.AfterFunc(delay, func() {
		m.deliver(ch, redial{ch: ch, gen: gen})
	})
}

// closeChannel is the explicit close: no reconnect, queued frames are dropped.
func (m *Manager) closeChannel(ch *channel) {
	if ch.closed() {
		return
	}
	close(ch.done)
	if ch.retry != nil {
		ch.retry.Stop()
		ch.retry = nil
	}
	wasOpen := ch.info.State == StateOpen
	closeConn(ch.conn)
	ch.conn = nil
	ch.info.State = StateClosed
	ch.resyncing = false
	ch.pending = nil

	m.logger.Info("channel closed", zap.String("channel", ch.info.Name), zap.String("session_id", ch.info.SessionID))
	if wasOpen {
		m.notify("on_close", func() {
			if m.opts.Lifecycle.OnClose != nil {
				m.opts.Lifecycle.OnClose(ch.info)
			}
		})
	}
}

func (m *Manager) shutdown() {
	for name, ch := range m.channels {
		m.closeChannel(ch)
		delete(m.channels, name)
	}
}

func (m *Manager) stale(ch *channel, gen int) bool {
	return m.channels[ch.info.Name] != ch || ch.closed() || gen != ch.gen
}

func (m *Manager) dispatch(ch *channel, frame []byte) {
	if ch.spec.Dispatch == nil {
		return
	}
	m.guard("dispatch", func() { ch.spec.Dispatch(frame) })
}

func (m *Manager) notify(callback string, fn func()) {
	m.guard(callback, fn)
}

func (m *Manager) guard(what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("recovered panic on event loop", zap.String("in", what), zap.Any("panic", rec))
		}
	}()
	fn()
}

func (c *channel) active() bool {
	return !c.closed() && (c.info.State != StateClosed || c.retry != nil)
}
