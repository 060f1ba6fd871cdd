package projector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
)

func newQuestion(id models.QuestionID, votes int) events.NewQuestion {
	return events.NewQuestion{Question: models.Question{ID: id, Text: "q", Votes: votes}}
}

func applyAll(t *testing.T, s State, evs ...events.Event) State {
	t.Helper()
	for _, ev := range evs {
		s, _ = Apply(s, ev)
	}
	return s
}

func ids(qs []models.Question) []models.QuestionID {
	out := make([]models.QuestionID, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func TestApply_NewQuestionIsIdempotent(t *testing.T) {
	s := NewState("42", Rules{})

	s, eff := Apply(s, newQuestion(1, 0))
	require.Equal(t, EffectQuestionAdded, eff.Kind)

	s, eff = Apply(s, newQuestion(1, 0))
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Equal(t, "duplicate question", eff.Reason)
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.ByTime(), 1)
	assert.Len(t, s.ByVote(), 1)
}

func TestApply_NewQuestionOrdering(t *testing.T) {
	s := applyAll(t, NewState("42", Rules{}), newQuestion(1, 0), newQuestion(2, 0), newQuestion(3, 0))

	assert.Equal(t, []models.QuestionID{3, 2, 1}, ids(s.ByTime()), "newest first")
	assert.Equal(t, []models.QuestionID{1, 2, 3}, ids(s.ByVote()), "appended in arrival order")
}

func TestApply_VoteSortIsStable(t *testing.T) {
	s := applyAll(t, NewState("42", Rules{}),
		newQuestion(1, 3), newQuestion(2, 5), newQuestion(3, 5), newQuestion(4, 1),
	)

	s, eff := Apply(s, events.VoteChanged{QuestionID: 4, Votes: 5})
	require.Equal(t, EffectVotesChanged, eff.Kind)
	assert.True(t, eff.Reordered)

	assert.Equal(t, []models.QuestionID{2, 3, 4, 1}, s.VoteOrder())
}

func TestApply_VoteChanges(t *testing.T) {
	base := applyAll(t, NewState("42", Rules{}), newQuestion(1, 2), newQuestion(2, 1))

	cases := []struct {
		name      string
		ev        events.VoteChanged
		wantKind  EffectKind
		wantOrder []models.QuestionID
		wantErr   error
	}{
		{"absolute value, not delta", events.VoteChanged{QuestionID: 2, Votes: 7}, EffectVotesChanged, []models.QuestionID{2, 1}, nil},
		{"same value is a no-op", events.VoteChanged{QuestionID: 1, Votes: 2}, EffectNone, []models.QuestionID{1, 2}, nil},
		{"lower count is accepted", events.VoteChanged{QuestionID: 1, Votes: 0}, EffectVotesChanged, []models.QuestionID{2, 1}, nil},
		{"unknown question", events.VoteChanged{QuestionID: 99, Votes: 1}, EffectNone, []models.QuestionID{1, 2}, ErrPrecondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, eff := Apply(base, tc.ev)
			assert.Equal(t, tc.wantKind, eff.Kind)
			assert.Equal(t, tc.wantOrder, s.VoteOrder())
			if tc.wantErr != nil {
				assert.True(t, errors.Is(eff.Err, tc.wantErr))
			} else {
				assert.NoError(t, eff.Err)
			}
		})
	}

	q, _ := base.Question(2)
	assert.Equal(t, 1, q.Votes, "base state must not be mutated")
}

func TestApply_AnsweredIsMonotone(t *testing.T) {
	s := applyAll(t, NewState("42", Rules{}), newQuestion(1, 0), newQuestion(2, 0))

	s, eff := Apply(s, events.QuestionAnswered{QuestionID: 1})
	require.Equal(t, EffectQuestionAnswered, eff.Kind)

	// Nothing in the event set can revert the flag: re-delivery, a duplicate
	// new-question carrying answered=false, votes, lifecycle changes.
	s = applyAll(t, s,
		events.QuestionAnswered{QuestionID: 1},
		events.NewQuestion{Question: models.Question{ID: 1, Text: "q", Answered: false}},
		events.VoteChanged{QuestionID: 1, Votes: 3},
		events.SessionEnded{},
		events.SessionStarted{},
	)

	q, ok := s.Question(1)
	require.True(t, ok)
	assert.True(t, q.Answered)
	assert.Equal(t, []models.QuestionID{2}, ids(s.UnansweredByTime()))
	assert.Equal(t, []models.QuestionID{2}, ids(s.UnansweredByVote()))
	assert.Equal(t, []models.QuestionID{2, 1}, ids(s.ByTime()), "answered questions stay in the model")
}

func TestApply_SessionLifecycle(t *testing.T) {
	s := NewState("42", Rules{})
	require.Equal(t, models.SessionStatusUnknown, s.Session.Status)

	s, eff := Apply(s, events.SessionEnded{})
	assert.Equal(t, EffectSessionEnded, eff.Kind)
	assert.False(t, s.Session.Active())

	s, eff = Apply(s, events.SessionEnded{})
	assert.Equal(t, EffectNone, eff.Kind)
	assert.Equal(t, models.SessionStatusEnded, s.Session.Status)

	s, eff = Apply(s, events.SessionStarted{})
	assert.Equal(t, EffectSessionStarted, eff.Kind)
	assert.True(t, s.Session.Active())

	s, _ = Apply(s, events.SessionEnded{})
	assert.False(t, s.Session.Active())
}

func TestApply_ParticipantCountFloor(t *testing.T) {
	s := NewState("42", Rules{})

	s, eff := Apply(s, events.ParticipantLeft{})
	assert.Equal(t, 0, s.Session.ParticipantCount)
	assert.ErrorIs(t, eff.Err, ErrPrecondition)
}

func TestApply_ParticipantModes(t *testing.T) {
	cases := []struct {
		name string
		mode ParticipantMode
		evs  []events.Event
		want int
	}{
		{"joined is absolute", ParticipantLegacy, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantJoined{Count: 3}}, 3},
		{"legacy decrements", ParticipantLegacy, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantLeft{}}, 4},
		{"legacy duplicate delivery double counts", ParticipantLegacy, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantLeft{}, events.ParticipantLeft{}}, 3},
		{"legacy ignores carried count", ParticipantLegacy, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantLeft{Count: 1, HasCount: true}}, 4},
		{"absolute applies carried count", ParticipantAbsolute, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantLeft{Count: 4, HasCount: true}, events.ParticipantLeft{Count: 4, HasCount: true}}, 4},
		{"absolute falls back to decrement", ParticipantAbsolute, []events.Event{events.ParticipantJoined{Count: 5}, events.ParticipantLeft{}}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := applyAll(t, NewState("42", Rules{ParticipantMode: tc.mode}), tc.evs...)
			assert.Equal(t, tc.want, s.Session.ParticipantCount)
		})
	}
}

func TestApply_IgnoresOrganizationEvents(t *testing.T) {
	s := NewState("42", Rules{})
	for _, ev := range []events.Event{events.BrandingChanged{LogoPath: "/x.png"}, events.DemoWarning{}, events.Unknown{Action: "bogus-kind"}} {
		next, eff := Apply(s, ev)
		assert.Equal(t, EffectNone, eff.Kind)
		assert.Equal(t, s.Snapshot(), next.Snapshot())
	}
}

func TestReset_ReplacesQuestions(t *testing.T) {
	s := applyAll(t, NewState("42", Rules{}),
		events.SessionStarted{}, events.ParticipantJoined{Count: 8}, newQuestion(1, 0),
	)

	byTime := []models.Question{{ID: 3, Votes: 1}, {ID: 2, Votes: 4, Answered: true}, {ID: 1, Votes: 4}}
	byVote := []models.Question{{ID: 2, Votes: 4}, {ID: 1, Votes: 4}}

	s, eff := Reset(s, byTime, byVote)
	assert.Equal(t, EffectResynced, eff.Kind)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []models.QuestionID{3, 2, 1}, ids(s.ByTime()))
	assert.Equal(t, []models.QuestionID{2, 1, 3}, s.VoteOrder(), "server tie order kept, missing entries placed by votes")
	assert.Equal(t, []models.QuestionID{3, 1}, ids(s.UnansweredByTime()))
	assert.True(t, s.Session.Active())
	assert.Equal(t, 8, s.Session.ParticipantCount)
	assert.True(t, eff.ParticipantsStale, "listing does not confirm the participant count")
	assert.Equal(t, 8, eff.Participants)
}

func TestMarkVoted(t *testing.T) {
	s := applyAll(t, NewState("42", Rules{}), newQuestion(1, 2))

	s, eff := MarkVoted(s, 1)
	assert.Equal(t, EffectVoteRecorded, eff.Kind)
	q, _ := s.Question(1)
	assert.True(t, q.UserHasVoted)
	assert.Equal(t, 2, q.Votes, "count waits for the server")

	_, eff = MarkVoted(s, 1)
	assert.Equal(t, EffectNone, eff.Kind)

	_, eff = MarkVoted(s, 9)
	assert.ErrorIs(t, eff.Err, ErrPrecondition)
}
