package projector

import (
	"fmt"
	"slices"

	"github.com/aura-webinar/liveqa/internal/events"
	"github.com/aura-webinar/liveqa/internal/models"
)

// Apply is the session transition function. It returns the next state and a
// description of what changed; s itself is never modified.
func Apply(s State, ev events.Event) (State, Effect) {
	switch e := ev.(type) {
	case events.NewQuestion:
		id := e.Question.ID
		if _, ok := s.questions[id]; ok {
			return s, noEffect("duplicate question")
		}
		next := s.clone()
		next.questions[id] = e.Question
		next.byTime = append([]models.QuestionID{id}, next.byTime...)
		next.byVote = append(next.byVote, id)
		return next, Effect{Kind: EffectQuestionAdded, QuestionID: id, Votes: e.Question.Votes}

	case events.VoteChanged:
		q, ok := s.questions[e.QuestionID]
		if !ok {
			return s, violation("unknown question", fmt.Errorf("%w: vote for unknown question %d", ErrPrecondition, e.QuestionID))
		}
		if q.Votes == e.Votes {
			return s, noEffect("votes unchanged")
		}
		next := s.clone()
		q.Votes = e.Votes
		next.questions[e.QuestionID] = q
		next.byVote = sortByVotes(next.byVote, next.questions)
		return next, Effect{
			Kind:       EffectVotesChanged,
			QuestionID: e.QuestionID,
			Votes:      e.Votes,
			Reordered:  !slices.Equal(s.byVote, next.byVote),
		}

	case events.QuestionAnswered:
		q, ok := s.questions[e.QuestionID]
		if !ok {
			return s, violation("unknown question", fmt.Errorf("%w: answer for unknown question %d", ErrPrecondition, e.QuestionID))
		}
		if q.Answered {
			return s, noEffect("already answered")
		}
		next := s.clone()
		q.Answered = true
		next.questions[e.QuestionID] = q
		return next, Effect{Kind: EffectQuestionAnswered, QuestionID: e.QuestionID}

	case events.SessionStarted:
		if s.Session.Status == models.SessionStatusActive {
			return s, noEffect("session already active")
		}
		next := s
		next.Session.Status = models.SessionStatusActive
		return next, Effect{Kind: EffectSessionStarted}

	case events.SessionEnded:
		if s.Session.Status == models.SessionStatusEnded {
			return s, noEffect("session already ended")
		}
		next := s
		next.Session.Status = models.SessionStatusEnded
		return next, Effect{Kind: EffectSessionEnded}

	case events.ParticipantJoined:
		return setParticipants(s, e.Count)

	case events.ParticipantLeft:
		if s.Rules.ParticipantMode == ParticipantAbsolute && e.HasCount {
			return setParticipants(s, e.Count)
		}
		if s.Session.ParticipantCount <= 0 {
			next := s
			next.Session.ParticipantCount = 0
			return next, violation("participant count already zero",
				fmt.Errorf("%w: participant-left with count %d", ErrPrecondition, s.Session.ParticipantCount))
		}
		next := s
		next.Session.ParticipantCount--
		return next, Effect{Kind: EffectParticipantsChanged, Participants: next.Session.ParticipantCount}

	default:
		return s, noEffect("not a session event: " + ev.Kind().String())
	}
}

func setParticipants(s State, n int) (State, Effect) {
	if s.Session.ParticipantCount == n {
		return s, noEffect("participant count unchanged")
	}
	next := s
	next.Session.ParticipantCount = n
	return next, Effect{Kind: EffectParticipantsChanged, Participants: n}
}

// Reset replaces the question collection with an authoritative listing, keeping
// the session lifecycle flag and participant count. byTime must be newest first;
// byVote may omit questions, which are then placed by their vote count.
func Reset(s State, byTime, byVote []models.Question) (State, Effect) {
	next := s.clone()
	next.questions = make(map[models.QuestionID]models.Question, len(byTime))
	next.byTime = make([]models.QuestionID, 0, len(byTime))
	for _, q := range byTime {
		if _, dup := next.questions[q.ID]; dup {
			continue
		}
		next.questions[q.ID] = q
		next.byTime = append(next.byTime, q.ID)
	}

	next.byVote = make([]models.QuestionID, 0, len(next.byTime))
	seen := make(map[models.QuestionID]bool, len(next.byTime))
	for _, q := range byVote {
		if _, ok := next.questions[q.ID]; !ok || seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		next.byVote = append(next.byVote, q.ID)
	}
	for _, id := range next.byTime {
		if !seen[id] {
			next.byVote = append(next.byVote, id)
		}
	}
	next.byVote = sortByVotes(next.byVote, next.questions)
	return next, Effect{Kind: EffectResynced, Participants: next.Session.ParticipantCount, ParticipantsStale: true}
}

// MarkVoted records locally that the viewer upvoted id, before the server
// confirms. The vote count itself only changes through vote-up frames.
func MarkVoted(s State, id models.QuestionID) (State, Effect) {
	q, ok := s.questions[id]
	if !ok {
		return s, violation("unknown question", fmt.Errorf("%w: local vote for unknown question %d", ErrPrecondition, id))
	}
	if q.UserHasVoted {
		return s, noEffect("already voted")
	}
	next := s.clone()
	q.UserHasVoted = true
	next.questions[id] = q
	return next, Effect{Kind: EffectVoteRecorded, QuestionID: id}
}
