// Package page holds the explicit context objects of a classroom page: the
// Page, alive for the whole process and bound to the organization channel,
// and the SessionView, mounted while a class session is on screen.
package page

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/config"
	"github.com/aura-webinar/liveqa/internal/api"
	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
	"github.com/aura-webinar/liveqa/internal/router"
)

const defaultRequestTimeout = 10 * time.Second

// ErrNoActions is reported to user actions when the page has no REST client.
var ErrNoActions = errors.New("page: actions unavailable")

var (
	organizationKinds = []events.Kind{
		events.KindSessionStarted,
		events.KindSessionEnded,
		events.KindBrandingChanged,
		events.KindDemoWarning,
	}
	sessionKinds = []events.Kind{
		events.KindNewQuestion,
		events.KindVoteChanged,
		events.KindQuestionAnswered,
		events.KindSessionStarted,
		events.KindSessionEnded,
		events.KindParticipantJoined,
		events.KindParticipantLeft,
	}
)

// Channels is the part of the connection manager a page drives.
type Channels interface {
	OpenOrganizationChannel(spec realtime.ChannelSpec) error
	OpenSessionChannel(sessionID string, spec realtime.ChannelSpec) error
	CloseChannel(name string) error
	Post(fn func()) error
}

// Actions are the REST collaborators behind user actions and resync.
type Actions interface {
	SubmitQuestion(ctx context.Context, sessionID, text string) error
	Upvote(ctx context.Context, id models.QuestionID) error
	MarkAnswered(ctx context.Context, id models.QuestionID) error
	FetchQuestions(ctx context.Context, sessionID string) (*api.Listing, error)
}

// Renderer draws updates. It is called on the event loop and must not block.
type Renderer interface {
	Render(u realtime.Update)
	Notices(ns []notice.Notice)
	Channel(info realtime.ChannelInfo)
}

// Options configure a Page.
type Options struct {
	Hub            *realtime.Hub // optional
	Renderer       Renderer      // optional
	Rules          projector.Rules
	Branding       models.Branding
	NoticeTimeout  time.Duration
	RequestTimeout time.Duration
	DemoCountdown  time.Duration // wait before remounting after a demo warning
	Logger         *zap.Logger
}

// RulesFromConfig maps UI settings to projector rules.
func RulesFromConfig(c config.UIConfig) projector.Rules {
	if c.ParticipantMode == config.ParticipantModeAbsolute {
		return projector.Rules{ParticipantMode: projector.ParticipantAbsolute}
	}
	return projector.Rules{ParticipantMode: projector.ParticipantLegacy}
}

// Page is the process-wide page context.
type Page struct {
	channels Channels
	actions  Actions
	opts     Options
	logger   *zap.Logger

	// owned by the event loop
	org     *projector.Organization
	notices *notice.Board

	mu   sync.Mutex
	view *SessionView
}

// New creates a page. Nothing is opened until Open.
func New(channels Channels, actions Actions, opts Options) *Page {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.DemoCountdown <= 0 {
		opts.DemoCountdown = projector.DemoCountdown
	}
	p := &Page{
		channels: channels,
		actions:  actions,
		opts:     opts,
		logger:   opts.Logger,
		org:      projector.NewOrganization(opts.Branding, opts.Logger),
	}
	p.notices = notice.NewBoard(opts.NoticeTimeout, channels.Post, p.renderNotices, opts.Logger)
	return p
}

// Open opens the organization channel. Calling it again is harmless.
func (p *Page) Open() error {
	r, err := router.New(realtime.ChannelOrganization, routesFor(organizationKinds, p.applyOrganization), p.logger)
	if err != nil {
		return err
	}
	if err := p.channels.OpenOrganizationChannel(realtime.ChannelSpec{Dispatch: dispatcher(r)}); err != nil {
		return fmt.Errorf("open organization channel: %w", err)
	}
	return nil
}

// Mount shows session sessionID, unmounting the current view first.
func (p *Page) Mount(sessionID string) (*SessionView, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.view != nil {
		if err := p.view.close(); err != nil {
			p.logger.Warn("unmount previous session view", zap.String("session_id", p.view.id), zap.Error(err))
		}
		p.view = nil
	}

	v := &SessionView{
		id:      sessionID,
		page:    p,
		session: projector.NewSession(sessionID, p.opts.Rules, p.logger),
	}
	r, err := router.New(realtime.ChannelSession, routesFor(sessionKinds, v.apply), p.logger.With(zap.String("session_id", sessionID)))
	if err != nil {
		return nil, err
	}
	spec := realtime.ChannelSpec{Dispatch: dispatcher(r)}
	if p.actions != nil {
		spec.Resync = v.resync
	}
	if err := p.channels.OpenSessionChannel(sessionID, spec); err != nil {
		return nil, fmt.Errorf("open session channel: %w", err)
	}
	p.view = v
	p.logger.Info("session view mounted", zap.String("session_id", sessionID))
	return v, nil
}

// Unmount tears down the current session view, if any.
func (p *Page) Unmount() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view == nil {
		return nil
	}
	err := p.view.close()
	p.logger.Info("session view unmounted", zap.String("session_id", p.view.id))
	p.view = nil
	return err
}

// View returns the mounted session view or nil.
func (p *Page) View() *SessionView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Reload remounts the current session view, fetching its state again.
func (p *Page) Reload() error {
	v := p.View()
	if v == nil {
		return nil
	}
	_, err := p.Mount(v.id)
	return err
}

// Organization returns a snapshot of the organization state.
func (p *Page) Organization() (projector.OrganizationSnapshot, error) {
	return onLoop(p.channels, func() projector.OrganizationSnapshot { return p.org.State().Snapshot() })
}

// Notices returns the visible notices.
func (p *Page) Notices() ([]notice.Notice, error) {
	return onLoop(p.channels, p.notices.Active)
}

// Lifecycle returns channel callbacks that log transitions and hand them to r.
func Lifecycle(r Renderer, logger *zap.Logger) realtime.Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	report := func(info realtime.ChannelInfo) {
		if r != nil {
			r.Channel(info)
		}
	}
	return realtime.Lifecycle{
		OnOpen: report,
		OnClose: func(info realtime.ChannelInfo) {
			info.State = realtime.StateClosed
			report(info)
		},
		OnError: func(info realtime.ChannelInfo, err error) {
			logger.Warn("channel error reported", zap.String("channel", info.Name), zap.Error(err))
		},
	}
}

func (p *Page) applyOrganization(ev events.Event) {
	eff := p.org.Apply(ev)
	if !eff.Changed() {
		return
	}
	snap := p.org.State().Snapshot()
	p.publish(realtime.Update{Topic: realtime.TopicOrganization, Effect: eff, Organization: &snap})

	if eff.Kind == projector.EffectDemoWarning {
		countdown := p.opts.DemoCountdown
		p.notices.Show(notice.LevelInfo, fmt.Sprintf("Demo data will be reset in %d seconds", int(countdown.Seconds())))
		time.AfterFunc(countdown, func() {
			if err := p.Reload(); err != nil {
				p.logger.Warn("reload after demo reset", zap.Error(err))
			}
		})
	}
}

func (p *Page) publish(u realtime.Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	if p.opts.Renderer != nil {
		p.opts.Renderer.Render(u)
	}
	if p.opts.Hub != nil {
		p.opts.Hub.Publish(u)
	}
}

func (p *Page) renderNotices(ns []notice.Notice) {
	if p.opts.Renderer != nil {
		p.opts.Renderer.Notices(ns)
	}
}

func (p *Page) post(fn func()) {
	if err := p.channels.Post(fn); err != nil {
		p.logger.Debug("dropping task", zap.Error(err))
	}
}

// async runs call off the event loop and posts done back onto it. Without a
// REST client done gets ErrNoActions; a panic in call is logged and reported
// to done as an error.
func (p *Page) async(op string, call func(ctx context.Context) error, done func(err error)) {
	if p.actions == nil {
		p.logger.Warn("action unavailable", zap.String("op", op))
		p.post(func() { done(ErrNoActions) })
		return
	}
	go func() {
		err := p.run(op, call)
		if err != nil {
			p.logger.Warn("action failed", zap.String("op", op), zap.Error(err))
		}
		p.post(func() { done(err) })
	}()
}

func (p *Page) run(op string, call func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("recovered panic in action", zap.String("op", op), zap.Any("panic", rec))
			err = fmt.Errorf("%s: panic: %v", op, rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.RequestTimeout)
	defer cancel()
	return call(ctx)
}

func routesFor(kinds []events.Kind, h router.Handler) router.Routes {
	routes := make(router.Routes, len(kinds))
	for _, k := range kinds {
		routes[k] = []router.Handler{h}
	}
	return routes
}

func dispatcher(r *router.Router) realtime.DispatchFunc {
	return func(frame []byte) { _, _ = r.Dispatch(frame) }
}

// onLoop runs fn on the event loop and returns its result.
func onLoop[T any](channels Channels, fn func() T) (T, error) {
	reply := make(chan T, 1)
	if err := channels.Post(func() { reply <- fn() }); err != nil {
		var zero T
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-time.After(defaultRequestTimeout):
		var zero T
		return zero, errors.New("page: event loop did not answer")
	}
}
