package projector

import (
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
)

// Session owns the state of one class session view. It is driven from the
// connection event loop and is not safe for concurrent use.
type Session struct {
	state  State
	logger *zap.Logger
}

// NewSession creates a projector for sessionID.
func NewSession(sessionID string, rules Rules, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		state:  NewState(sessionID, rules),
		logger: logger.With(zap.String("session_id", sessionID)),
	}
}

// Apply projects ev onto the session and returns its effect.
func (p *Session) Apply(ev events.Event) Effect {
	next, eff := Apply(p.state, ev)
	p.state = next
	p.log(ev.Kind(), eff)
	return eff
}

// MarkVoted records the viewer's own vote on a question.
func (p *Session) MarkVoted(id models.QuestionID) Effect {
	next, eff := MarkVoted(p.state, id)
	p.state = next
	if eff.Err != nil {
		p.logger.Warn("local vote rejected", zap.Int64("question_id", int64(id)), zap.Error(eff.Err))
	}
	return eff
}

// Reset replaces the question collection after a resync.
func (p *Session) Reset(byTime, byVote []models.Question) Effect {
	next, eff := Reset(p.state, byTime, byVote)
	p.state = next
	p.logger.Info("session state resynced", zap.Int("questions", next.Len()))
	return eff
}

// State returns the current state. The value is immutable.
func (p *Session) State() State { return p.state }

func (p *Session) log(kind events.Kind, eff Effect) {
	switch {
	case eff.Err != nil:
		p.logger.Warn("event rejected",
			zap.String("action", kind.String()),
			zap.String("reason", eff.Reason),
			zap.Error(eff.Err),
		)
	case !eff.Changed():
		p.logger.Debug("event ignored", zap.String("action", kind.String()), zap.String("reason", eff.Reason))
	default:
		p.logger.Debug("event applied", zap.String("action", kind.String()), zap.String("effect", string(eff.Kind)))
	}
}
