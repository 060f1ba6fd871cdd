package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

func snapshot() *projector.Snapshot {
	a := models.Question{ID: 1, Text: "first", Votes: 4, Answered: true}
	b := models.Question{ID: 2, Text: "second", Votes: 9, UserHasVoted: true}
	return &projector.Snapshot{
		Session:          models.ClassSession{Status: models.SessionStatusActive, ParticipantCount: 12},
		QuestionsByTime:  []models.Question{b, a},
		QuestionsByVote:  []models.Question{b, a},
		UnansweredByTime: []models.Question{b},
		UnansweredByVote: []models.Question{b},
	}
}

func TestLog_Render(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))

	l.Render(realtime.Update{
		Topic:   realtime.TopicSession("5"),
		Effect:  projector.Effect{Kind: projector.EffectVotesChanged, QuestionID: 2, Votes: 9, Reordered: true},
		Session: snapshot(),
	})

	entries := logs.FilterMessage(string(projector.EffectVotesChanged)).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "session:5", fields["topic"])
	assert.Equal(t, int64(2), fields["question_id"])
	assert.Equal(t, int64(9), fields["votes"])
	assert.Equal(t, true, fields["reordered"])
	assert.Equal(t, "active", fields["status"])
	assert.Equal(t, int64(1), fields["unanswered"])
}

func TestLog_RenderResyncFlagsParticipantCount(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewLog(zap.New(core)).Render(realtime.Update{
		Topic:  realtime.TopicSession("5"),
		Effect: projector.Effect{Kind: projector.EffectResynced, Participants: 4, ParticipantsStale: true},
	})

	fields := logs.FilterMessage(string(projector.EffectResynced)).All()[0].ContextMap()
	assert.Equal(t, int64(4), fields["participants"])
	assert.Equal(t, true, fields["participants_stale"])
}

func TestLog_NoticesAndChannel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLog(zap.New(core))

	l.Notices(nil)
	assert.Zero(t, logs.Len())

	l.Notices([]notice.Notice{{Level: notice.LevelInfo, Text: "old"}, {Level: notice.LevelError, Text: "Vote failed"}})
	entry := logs.FilterMessage("notice").All()[0]
	assert.Equal(t, "Vote failed", entry.ContextMap()["text"])
	assert.Equal(t, int64(2), entry.ContextMap()["visible"])

	l.Channel(realtime.ChannelInfo{Name: realtime.ChannelSession, SessionID: "5", State: realtime.StateOpen})
	assert.Equal(t, 1, logs.FilterMessage("channel open").Len())
}

type countingRenderer struct{ updates, notices, channels int }

func (c *countingRenderer) Render(realtime.Update)        { c.updates++ }
func (c *countingRenderer) Notices([]notice.Notice)       { c.notices++ }
func (c *countingRenderer) Channel(realtime.ChannelInfo) { c.channels++ }

func TestMulti(t *testing.T) {
	a, b := &countingRenderer{}, &countingRenderer{}
	m := Multi{a, b}
	m.Render(realtime.Update{})
	m.Notices(nil)
	m.Channel(realtime.ChannelInfo{})
	assert.Equal(t, countingRenderer{1, 1, 1}, *a)
	assert.Equal(t, countingRenderer{1, 1, 1}, *b)
}

func TestModel_Views(t *testing.T) {
	m := newModel()
	assert.Empty(t, m.rows())
	assert.Equal(t, "No session mounted", m.header())

	m.apply(realtime.Update{Session: snapshot()})
	assert.Equal(t, "Questions (newest)", m.title())
	rows := m.rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "    9▲  second", rows[0])
	assert.Equal(t, "✔   4   first", rows[1])

	m.byVote, m.unansweredOnly = true, true
	assert.Equal(t, "Unanswered questions (most votes)", m.title())
	assert.Len(t, m.questions(), 1)

	m.unansweredOnly = false
	assert.Equal(t, models.QuestionID(2), m.questions()[0].ID)
}

func TestModel_Header(t *testing.T) {
	m := newModel()
	m.apply(realtime.Update{Session: snapshot()})
	m.apply(realtime.Update{Organization: &projector.OrganizationSnapshot{
		Branding: models.Branding{LogoPath: "/static/logo.png"},
		Sections: []models.Section{{ID: 3, Active: true}, {ID: 4}},
	}})
	m.channels[realtime.ChannelSession] = realtime.ChannelInfo{Name: realtime.ChannelSession, State: realtime.StateConnecting, Attempt: 2}

	h := m.header()
	assert.True(t, strings.HasPrefix(h, "Session: active   Participants: 12"))
	assert.Contains(t, h, "[session](fg:yellow) connecting (retry 2)")
	assert.Contains(t, h, "Logo: /static/logo.png")
	assert.Contains(t, h, "Live sections: 3")
}

func TestDashboard_QueuesWithoutBlocking(t *testing.T) {
	d := NewDashboard(nil)
	for i := 0; i < dashboardQueue+10; i++ {
		d.Render(realtime.Update{})
		d.Notices(nil)
		d.Channel(realtime.ChannelInfo{})
	}
	assert.Len(t, d.updates, dashboardQueue)
}
