package events

// Kind is the event discriminator. Known kinds use the wire value of the "action" field.
type Kind string

const (
	KindNewQuestion       Kind = "new-question"
	KindVoteChanged       Kind = "vote-up"
	KindQuestionAnswered  Kind = "mark-question"
	KindSessionStarted    Kind = "start-session"
	KindSessionEnded      Kind = "end-session"
	KindParticipantJoined Kind = "participant-joined"
	KindParticipantLeft   Kind = "participant-left"
	KindBrandingChanged   Kind = "new-logo"
	KindDemoWarning       Kind = "demo-warning-banner"

	// KindUnknown is the fallback for any action outside the set above.
	KindUnknown Kind = "<unknown>"
)

var knownKinds = []Kind{
	KindNewQuestion,
	KindVoteChanged,
	KindQuestionAnswered,
	KindSessionStarted,
	KindSessionEnded,
	KindParticipantJoined,
	KindParticipantLeft,
	KindBrandingChanged,
	KindDemoWarning,
}

// Kinds returns every known kind, without KindUnknown.
func Kinds() []Kind {
	out := make([]Kind, len(knownKinds))
	copy(out, knownKinds)
	return out
}

// Known reports whether k is one of the enumerated kinds.
func (k Kind) Known() bool {
	for _, known := range knownKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }
