package page

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/api"
	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

// SessionView is the context of one mounted class session view. Its
// projector is only touched on the event loop.
type SessionView struct {
	id      string
	page    *Page
	session *projector.Session
}

// ID is the class session ID.
func (v *SessionView) ID() string { return v.id }

// Snapshot returns every view of the session state.
func (v *SessionView) Snapshot() (projector.Snapshot, error) {
	return onLoop(v.page.channels, func() projector.Snapshot { return v.session.State().Snapshot() })
}

// Vote upvotes a question. It returns immediately; a refusal or failure
// shows up as a notice.
func (v *SessionView) Vote(id models.QuestionID) {
	p := v.page
	if p.actions != nil {
		p.post(func() {
			if eff := v.session.MarkVoted(id); eff.Changed() {
				v.publish(eff)
			}
		})
	}
	p.async("upvote", func(ctx context.Context) error { return p.actions.Upvote(ctx, id) }, func(err error) {
		switch {
		case err == nil:
		case errors.Is(err, api.ErrAlreadyVoted):
			p.notices.Show(notice.LevelInfo, "You already voted for this question")
		default:
			p.notices.Show(notice.LevelError, "Vote failed, please try again")
		}
	})
}

// MarkAnswered marks a question answered. It returns immediately.
func (v *SessionView) MarkAnswered(id models.QuestionID) {
	p := v.page
	p.async("mark answered", func(ctx context.Context) error { return p.actions.MarkAnswered(ctx, id) }, func(err error) {
		if err != nil {
			p.notices.Show(notice.LevelError, "Could not mark the question answered")
		}
	})
}

// Submit posts a new question. It returns immediately.
func (v *SessionView) Submit(text string) {
	p := v.page
	p.async("submit question", func(ctx context.Context) error { return p.actions.SubmitQuestion(ctx, v.id, text) }, func(err error) {
		if err != nil {
			p.notices.Show(notice.LevelError, "Your question could not be sent")
		}
	})
}

func (v *SessionView) apply(ev events.Event) {
	if eff := v.session.Apply(ev); eff.Changed() {
		v.publish(eff)
	}
}

func (v *SessionView) resync(ctx context.Context) (func(), error) {
	l, err := v.page.actions.FetchQuestions(ctx, v.id)
	if err != nil {
		return nil, err
	}
	return func() {
		v.publish(v.session.Reset(l.ByTime, l.ByVote))
	}, nil
}

func (v *SessionView) publish(eff projector.Effect) {
	snap := v.session.State().Snapshot()
	v.page.publish(realtime.Update{Topic: realtime.TopicSession(v.id), Effect: eff, Session: &snap})
}

func (v *SessionView) close() error {
	if err := v.page.channels.CloseChannel(realtime.ChannelSession); err != nil {
		v.page.logger.Debug("close session channel", zap.String("session_id", v.id), zap.Error(err))
		return err
	}
	return nil
}
