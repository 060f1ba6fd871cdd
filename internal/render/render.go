// Package render draws projected updates: as structured log lines, or as a
// terminal dashboard.
package render

import (
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

// Renderer is called on the event loop and must not block.
type Renderer interface {
	Render(u realtime.Update)
	Notices(ns []notice.Notice)
	Channel(info realtime.ChannelInfo)
}

// Multi fans out to several renderers in order.
type Multi []Renderer

func (m Multi) Render(u realtime.Update) {
	for _, r := range m {
		r.Render(u)
	}
}

func (m Multi) Notices(ns []notice.Notice) {
	for _, r := range m {
		r.Notices(ns)
	}
}

func (m Multi) Channel(info realtime.ChannelInfo) {
	for _, r := range m {
		r.Channel(info)
	}
}

// Log writes one line per update.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a line renderer.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Render(u realtime.Update) {
	l.logger.Info(string(u.Effect.Kind), UpdateFields(u)...)
}

func (l *Log) Notices(ns []notice.Notice) {
	if len(ns) == 0 {
		return
	}
	latest := ns[len(ns)-1]
	l.logger.Info("notice", zap.String("level", string(latest.Level)), zap.String("text", latest.Text), zap.Int("visible", len(ns)))
}

func (l *Log) Channel(info realtime.ChannelInfo) {
	l.logger.Info("channel "+info.State.String(),
		zap.String("channel", info.Name),
		zap.String("session_id", info.SessionID),
		zap.Int("attempt", info.Attempt),
	)
}

// UpdateFields are the structured fields describing an update.
func UpdateFields(u realtime.Update) []zap.Field {
	eff := u.Effect
	fields := []zap.Field{zap.String("topic", u.Topic)}
	switch eff.Kind {
	case projector.EffectQuestionAdded, projector.EffectVotesChanged:
		fields = append(fields, zap.Int64("question_id", int64(eff.QuestionID)), zap.Int("votes", eff.Votes))
		if eff.Reordered {
			fields = append(fields, zap.Bool("reordered", true))
		}
	case projector.EffectQuestionAnswered, projector.EffectVoteRecorded:
		fields = append(fields, zap.Int64("question_id", int64(eff.QuestionID)))
	case projector.EffectParticipantsChanged:
		fields = append(fields, zap.Int("participants", eff.Participants))
	case projector.EffectResynced:
		fields = append(fields, zap.Int("participants", eff.Participants), zap.Bool("participants_stale", eff.ParticipantsStale))
	case projector.EffectSectionStarted, projector.EffectSectionEnded:
		fields = append(fields, zap.Int("section_id", eff.SectionID))
	case projector.EffectBrandingChanged:
		fields = append(fields, zap.String("logo", eff.LogoPath))
	case projector.EffectDemoWarning:
		fields = append(fields, zap.Duration("countdown", eff.Countdown))
	}
	if u.Session != nil {
		fields = append(fields,
			zap.String("status", u.Session.Session.Status.String()),
			zap.Int("questions", len(u.Session.QuestionsByTime)),
			zap.Int("unanswered", len(u.Session.UnansweredByTime)),
		)
	}
	return fields
}
