package projector

import (
	"errors"
	"time"

	"github.com/aura-webinar/liveqa/internal/models"
)

// ErrPrecondition marks an event that did not meet the precondition of its kind.
// The state is left unchanged, or clamped, and the violation is only logged.
var ErrPrecondition = errors.New("precondition violation")

// EffectKind describes the visible result of applying an event.
type EffectKind string

const (
	EffectNone                EffectKind = "none"
	EffectQuestionAdded       EffectKind = "question-added"
	EffectVotesChanged        EffectKind = "votes-changed"
	EffectQuestionAnswered    EffectKind = "question-answered"
	EffectSessionStarted      EffectKind = "session-started"
	EffectSessionEnded        EffectKind = "session-ended"
	EffectParticipantsChanged EffectKind = "participants-changed"
	EffectResynced            EffectKind = "resynced"
	EffectVoteRecorded        EffectKind = "vote-recorded"

	EffectSectionStarted  EffectKind = "section-started"
	EffectSectionEnded    EffectKind = "section-ended"
	EffectBrandingChanged EffectKind = "branding-changed"
	EffectDemoWarning     EffectKind = "demo-warning"
)

// DemoCountdown is how long the page waits before reloading after a demo warning.
const DemoCountdown = 30 * time.Second

// Effect tells rendering collaborators what changed.
type Effect struct {
	Kind              EffectKind        `json:"kind"`
	QuestionID        models.QuestionID `json:"questionID,omitempty"`
	Votes             int               `json:"votes,omitempty"`
	Reordered         bool              `json:"reordered,omitempty"` // vote-ordered view changed order
	Participants      int               `json:"participants,omitempty"`
	ParticipantsStale bool              `json:"participantsStale,omitempty"` // resync kept a count the listing cannot confirm
	SectionID         int               `json:"sectionID,omitempty"`
	LogoPath          string            `json:"logoPath,omitempty"`
	Countdown         time.Duration     `json:"countdown,omitempty"`
	Reason            string            `json:"reason,omitempty"` // why nothing changed
	Err               error             `json:"-"`
}

// Changed reports whether the state was modified.
func (e Effect) Changed() bool { return e.Kind != EffectNone }

func noEffect(reason string) Effect {
	return Effect{Kind: EffectNone, Reason: reason}
}

func violation(reason string, err error) Effect {
	return Effect{Kind: EffectNone, Reason: reason, Err: err}
}
