package projector

import (
	"cmp"
	"maps"
	"slices"

	"github.com/aura-webinar/liveqa/internal/models"
)

// ParticipantMode selects how participant-left frames are applied.
type ParticipantMode int

const (
	// ParticipantLegacy decrements on every participant-left, floored at zero.
	ParticipantLegacy ParticipantMode = iota
	// ParticipantAbsolute applies the count carried by participant-left when present.
	ParticipantAbsolute
)

// Rules are fixed for the lifetime of a session view.
type Rules struct {
	ParticipantMode ParticipantMode
}

// State is the client-side view of one class session. Values are copy-on-write:
// Apply never mutates the State it was given.
type State struct {
	Session   models.ClassSession
	Rules     Rules
	questions map[models.QuestionID]models.Question
	byTime    []models.QuestionID // newest first
	byVote    []models.QuestionID // votes descending, ties keep prior order
}

// NewState returns the state of a freshly opened session channel.
func NewState(sessionID string, rules Rules) State {
	return State{
		Session:   models.ClassSession{ID: sessionID},
		Rules:     rules,
		questions: map[models.QuestionID]models.Question{},
	}
}

func (s State) clone() State {
	out := s
	out.questions = maps.Clone(s.questions)
	if out.questions == nil {
		out.questions = map[models.QuestionID]models.Question{}
	}
	out.byTime = slices.Clone(s.byTime)
	out.byVote = slices.Clone(s.byVote)
	return out
}

// Question looks up a question by ID.
func (s State) Question(id models.QuestionID) (models.Question, bool) {
	q, ok := s.questions[id]
	return q, ok
}

// Len is the number of questions known in the session.
func (s State) Len() int { return len(s.questions) }

// ByTime returns all questions, newest first.
func (s State) ByTime() []models.Question { return s.list(s.byTime, false) }

// ByVote returns all questions, most votes first.
func (s State) ByVote() []models.Question { return s.list(s.byVote, false) }

// UnansweredByTime returns unanswered questions, newest first.
func (s State) UnansweredByTime() []models.Question { return s.list(s.byTime, true) }

// UnansweredByVote returns unanswered questions, most votes first.
func (s State) UnansweredByVote() []models.Question { return s.list(s.byVote, true) }

// VoteOrder returns question IDs in vote order.
func (s State) VoteOrder() []models.QuestionID { return slices.Clone(s.byVote) }

func (s State) list(order []models.QuestionID, unansweredOnly bool) []models.Question {
	out := make([]models.Question, 0, len(order))
	for _, id := range order {
		q := s.questions[id]
		if unansweredOnly && q.Answered {
			continue
		}
		out = append(out, q)
	}
	return out
}

// sortByVotes recomputes the vote order from scratch with a stable sort.
func sortByVotes(order []models.QuestionID, questions map[models.QuestionID]models.Question) []models.QuestionID {
	out := slices.Clone(order)
	slices.SortStableFunc(out, func(a, b models.QuestionID) int {
		return cmp.Compare(questions[b].Votes, questions[a].Votes)
	})
	return out
}

// Snapshot is the JSON form of a State handed to renderers and the status API.
type Snapshot struct {
	Session          models.ClassSession `json:"session"`
	QuestionsByTime  []models.Question   `json:"questionsByTime"`
	QuestionsByVote  []models.Question   `json:"questionsByVote"`
	UnansweredByTime []models.Question   `json:"questionsByTimeUnanswered"`
	UnansweredByVote []models.Question   `json:"questionsByVoteUnanswered"`
}

// Snapshot materialises every view of the state.
func (s State) Snapshot() Snapshot {
	return Snapshot{
		Session:          s.Session,
		QuestionsByTime:  s.ByTime(),
		QuestionsByVote:  s.ByVote(),
		UnansweredByTime: s.UnansweredByTime(),
		UnansweredByVote: s.UnansweredByVote(),
	}
}
