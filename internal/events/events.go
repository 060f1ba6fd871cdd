package events

import "github.com/aura-webinar/liveqa/internal/models"

// Event is a decoded frame. The set of implementations is closed.
type Event interface {
	Kind() Kind
	isEvent()
}

// NewQuestion announces a question posted in the session.
type NewQuestion struct {
	Question models.Question
}

// VoteChanged carries the absolute vote count of a question.
type VoteChanged struct {
	QuestionID models.QuestionID
	Votes      int
}

// QuestionAnswered marks a question answered.
type QuestionAnswered struct {
	QuestionID models.QuestionID
}

// SessionStarted is sent on both channels; SectionID is set on the organization channel.
type SessionStarted struct {
	SectionID    int
	AttendanceID int
}

// SessionEnded is sent on both channels; SectionID is set on the organization channel.
type SessionEnded struct {
	SectionID      int
	ClassSessionID int
}

// ParticipantJoined carries the absolute participant count.
type ParticipantJoined struct {
	Count int
}

// ParticipantLeft is a decrement instruction. Count is only set by servers that
// send the absolute count alongside it.
type ParticipantLeft struct {
	Count    int
	HasCount bool
}

// BrandingChanged carries the new organization logo.
type BrandingChanged struct {
	LogoPath string
}

// DemoWarning announces that a demo deployment is about to be reseeded.
type DemoWarning struct{}

// Unknown is any well-formed frame whose action is not enumerated.
type Unknown struct {
	Action string
}

func (NewQuestion) Kind() Kind       { return KindNewQuestion }
func (VoteChanged) Kind() Kind       { return KindVoteChanged }
func (QuestionAnswered) Kind() Kind  { return KindQuestionAnswered }
func (SessionStarted) Kind() Kind    { return KindSessionStarted }
func (SessionEnded) Kind() Kind      { return KindSessionEnded }
func (ParticipantJoined) Kind() Kind { return KindParticipantJoined }
func (ParticipantLeft) Kind() Kind   { return KindParticipantLeft }
func (BrandingChanged) Kind() Kind   { return KindBrandingChanged }
func (DemoWarning) Kind() Kind       { return KindDemoWarning }
func (Unknown) Kind() Kind           { return KindUnknown }

func (NewQuestion) isEvent()       {}
func (VoteChanged) isEvent()       {}
func (QuestionAnswered) isEvent()  {}
func (SessionStarted) isEvent()    {}
func (SessionEnded) isEvent()      {}
func (ParticipantJoined) isEvent() {}
func (ParticipantLeft) isEvent()   {}
func (BrandingChanged) isEvent()   {}
func (DemoWarning) isEvent()       {}
func (Unknown) isEvent()           {}
