// Package router decodes inbound channel frames and dispatches them to the
// handlers registered for their event kind.
package router

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/events"
)

// maxLoggedFrame caps how much of a rejected frame ends up in the log.
const maxLoggedFrame = 256

// Handler receives a decoded event on the event loop.
type Handler func(ev events.Event)

// Routes maps event kinds to their handlers, invoked in slice order.
// events.KindUnknown may be used to observe unrecognised actions.
type Routes map[events.Kind][]Handler

// Router is an immutable decode+dispatch table. It holds no session state.
type Router struct {
	name   string
	routes Routes
	logger *zap.Logger
}

// New builds a router for the named channel. Routes are copied; the router
// cannot be changed afterwards.
func New(name string, routes Routes, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make(Routes, len(routes))
	for kind, handlers := range routes {
		if !kind.Known() && kind != events.KindUnknown {
			return nil, fmt.Errorf("router %s: cannot route unknown kind %q", name, kind)
		}
		for i, h := range handlers {
			if h == nil {
				return nil, fmt.Errorf("router %s: nil handler %d for %q", name, i, kind)
			}
		}
		copied[kind] = append([]Handler(nil), handlers...)
	}
	return &Router{name: name, routes: copied, logger: logger.With(zap.String("channel", name))}, nil
}

// Dispatch decodes frame and synchronously runs the handlers for its kind.
// A DecodeError is logged and returned; the caller keeps the channel open.
// Unknown actions are logged and are not an error.
func (r *Router) Dispatch(frame []byte) (events.Event, error) {
	ev, err := events.Decode(frame)
	if err != nil {
		var de *events.DecodeError
		if errors.As(err, &de) {
			r.logger.Warn("dropping undecodable frame", zap.Error(err), zap.ByteString("frame", truncate(frame)))
		}
		return nil, err
	}

	if u, ok := ev.(events.Unknown); ok {
		r.logger.Info("unknown action", zap.String("action", u.Action))
	}

	handlers := r.routes[ev.Kind()]
	if len(handlers) == 0 {
		r.logger.Debug("no handler for action", zap.String("action", ev.Kind().String()))
		return ev, nil
	}
	for i, h := range handlers {
		r.invoke(i, h, ev)
	}
	return ev, nil
}

func (r *Router) invoke(i int, h Handler, ev events.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				zap.String("action", ev.Kind().String()),
				zap.Int("handler", i),
				zap.Any("panic", rec),
			)
		}
	}()
	h(ev)
}

func truncate(frame []byte) []byte {
	if len(frame) <= maxLoggedFrame {
		return frame
	}
	return frame[:maxLoggedFrame]
}
