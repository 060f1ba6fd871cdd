// Package statusapi serves the projected state over a local HTTP endpoint
// for debugging and scripting.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/middleware"
	"github.com/aura-webinar/liveqa/internal/realtime"
	"github.com/aura-webinar/liveqa/pkg/response"
)

const shutdownTimeout = 5 * time.Second

// Updates exposes the latest update per topic. Satisfied by *realtime.Hub.
type Updates interface {
	Latest(topic string) (realtime.Update, bool)
	Topics() []string
}

// Channels reports channel lifecycle state. Satisfied by *realtime.Manager.
type Channels interface {
	Channel(name string) realtime.ChannelInfo
}

// Health is the /health payload.
type Health struct {
	Status   string                 `json:"status"`
	Channels []realtime.ChannelInfo `json:"channels"`
}

// Server is the status endpoint.
type Server struct {
	updates  Updates
	channels Channels
	logger   *zap.Logger
	engine   *gin.Engine
}

// New builds the routes. channels may be nil.
func New(updates Updates, channels Channels, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{updates: updates, channels: channels, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.GET("/health", s.health)
	r.GET("/state", s.state)
	r.GET("/state/organization", s.topic(func(*gin.Context) string { return realtime.TopicOrganization }))
	r.GET("/state/session/:id", s.topic(func(c *gin.Context) string { return realtime.TopicSession(c.Param("id")) }))
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("status api shutdown", zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	h := Health{Status: "ok", Channels: []realtime.ChannelInfo{}}
	if s.channels != nil {
		for _, name := range []string{realtime.ChannelOrganization, realtime.ChannelSession} {
			info := s.channels.Channel(name)
			if info.URL == "" {
				continue
			}
			h.Channels = append(h.Channels, info)
			if info.State != realtime.StateOpen {
				h.Status = "degraded"
			}
		}
	}
	if h.Status != "ok" {
		response.ServiceUnavailable(c, "channel not open", h)
		return
	}
	response.OK(c, h)
}

func (s *Server) state(c *gin.Context) {
	out := make(map[string]realtime.Update)
	for _, topic := range s.updates.Topics() {
		if u, ok := s.updates.Latest(topic); ok {
			out[topic] = u
		}
	}
	response.OK(c, out)
}

func (s *Server) topic(name func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := s.updates.Latest(name(c))
		if !ok {
			response.NotFound(c, "no updates yet")
			return
		}
		response.OK(c, u)
	}
}
