package render

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/notice"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

// model is what the dashboard shows. It is owned by the UI goroutine.
type model struct {
	session  *projector.Snapshot
	org      *projector.OrganizationSnapshot
	channels map[string]realtime.ChannelInfo
	notices  []notice.Notice

	byVote         bool
	unansweredOnly bool
}

func newModel() *model {
	return &model{channels: make(map[string]realtime.ChannelInfo)}
}

func (m *model) apply(u realtime.Update) {
	if u.Session != nil {
		m.session = u.Session
	}
	if u.Organization != nil {
		m.org = u.Organization
	}
}

// questions is the list currently on screen.
func (m *model) questions() []models.Question {
	if m.session == nil {
		return nil
	}
	switch {
	case m.byVote && m.unansweredOnly:
		return m.session.UnansweredByVote
	case m.byVote:
		return m.session.QuestionsByVote
	case m.unansweredOnly:
		return m.session.UnansweredByTime
	default:
		return m.session.QuestionsByTime
	}
}

func (m *model) title() string {
	order := "newest"
	if m.byVote {
		order = "most votes"
	}
	if m.unansweredOnly {
		return fmt.Sprintf("Unanswered questions (%s)", order)
	}
	return fmt.Sprintf("Questions (%s)", order)
}

func (m *model) rows() []string {
	qs := m.questions()
	rows := make([]string, 0, len(qs))
	for _, q := range qs {
		rows = append(rows, questionRow(q))
	}
	return rows
}

func questionRow(q models.Question) string {
	mark := " "
	if q.Answered {
		mark = "✔"
	}
	voted := " "
	if q.UserHasVoted {
		voted = "▲"
	}
	return fmt.Sprintf("%s %3d%s  %s", mark, q.Votes, voted, q.Text)
}

func (m *model) header() string {
	var b strings.Builder
	if m.session != nil {
		s := m.session.Session
		fmt.Fprintf(&b, "Session: %s   Participants: %d", s.Status, s.ParticipantCount)
	} else {
		b.WriteString("No session mounted")
	}
	for _, name := range slices.Sorted(maps.Keys(m.channels)) {
		info := m.channels[name]
		fmt.Fprintf(&b, "   [%s](fg:%s) %s", name, stateColor(info.State), info.State)
		if info.Attempt > 0 {
			fmt.Fprintf(&b, " (retry %d)", info.Attempt)
		}
	}
	if m.org != nil {
		if m.org.Branding.LogoPath != "" {
			fmt.Fprintf(&b, "\nLogo: %s", m.org.Branding.LogoPath)
		}
		var active []string
		for _, sec := range m.org.Sections {
			if sec.Active {
				active = append(active, fmt.Sprint(sec.ID))
			}
		}
		if len(active) > 0 {
			fmt.Fprintf(&b, "\nLive sections: %s", strings.Join(active, ", "))
		}
	}
	return b.String()
}

func stateColor(s realtime.ChannelState) string {
	switch s {
	case realtime.StateOpen:
		return "green"
	case realtime.StateConnecting:
		return "yellow"
	default:
		return "red"
	}
}

func (m *model) noticeText() string {
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		color := "white"
		if n.Level == notice.LevelError {
			color = "red"
		}
		lines = append(lines, fmt.Sprintf("[%s](fg:%s)", n.Text, color))
	}
	return strings.Join(lines, "\n")
}
