package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/liveqa/internal/models"
)

func TestDecode_KnownKinds(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			name:  "new question from server broadcast",
			frame: `{"action":"new-question","userID":3,"questionID":12,"sessionID":4,"text":"Is this on the exam?","votes":0,"answered":false,"createdAt":"2024-03-01 10:15:00"}`,
			want: NewQuestion{Question: models.Question{
				ID: 12, Text: "Is this on the exam?", CreatedAt: "2024-03-01 10:15:00",
			}},
		},
		{
			name:  "new question with viewer vote flag",
			frame: `{"action":"new-question","questionID":7,"text":"q","votes":2,"answered":true,"userHasVoted":true}`,
			want:  NewQuestion{Question: models.Question{ID: 7, Text: "q", Votes: 2, Answered: true, UserHasVoted: true}},
		},
		{
			name:  "vote up",
			frame: `{"action":"vote-up","userID":1,"questionID":12,"votes":5}`,
			want:  VoteChanged{QuestionID: 12, Votes: 5},
		},
		{
			name:  "mark question",
			frame: `{"action":"mark-question","questionID":12,"answered":true}`,
			want:  QuestionAnswered{QuestionID: 12},
		},
		{
			name:  "start session with section",
			frame: `{"action":"start-session","sectionID":9,"attendanceID":30}`,
			want:  SessionStarted{SectionID: 9, AttendanceID: 30},
		},
		{
			name:  "end session",
			frame: `{"action":"end-session","sectionID":9}`,
			want:  SessionEnded{SectionID: 9},
		},
		{
			name:  "participant joined",
			frame: `{"action":"participant-joined","count":14}`,
			want:  ParticipantJoined{Count: 14},
		},
		{
			name:  "participant left without payload",
			frame: `{"action":"participant-left"}`,
			want:  ParticipantLeft{},
		},
		{
			name:  "participant left with absolute count",
			frame: `{"action":"participant-left","count":0}`,
			want:  ParticipantLeft{Count: 0, HasCount: true},
		},
		{
			name:  "new logo",
			frame: `{"action":"new-logo","logoPath":"/static/uploads/logo.png"}`,
			want:  BrandingChanged{LogoPath: "/static/uploads/logo.png"},
		},
		{
			name:  "demo warning",
			frame: `{"action":"demo-warning-banner"}`,
			want:  DemoWarning{},
		},
		{
			name:  "unknown action is not an error",
			frame: `{"action":"bogus-kind","whatever":[1,2]}`,
			want:  Unknown{Action: "bogus-kind"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
		})
	}
}

func TestDecode_Failures(t *testing.T) {
	cases := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `hello there`, ErrMalformedFrame},
		{"json array", `[1,2,3]`, ErrMalformedFrame},
		{"json null", `null`, ErrMalformedFrame},
		{"missing action", `{"questionID":1}`, ErrMissingAction},
		{"empty action", `{"action":""}`, ErrMissingAction},
		{"non-string action", `{"action":42}`, ErrInvalidField},
		{"vote without votes", `{"action":"vote-up","questionID":1}`, ErrInvalidField},
		{"vote with negative votes", `{"action":"vote-up","questionID":1,"votes":-2}`, ErrInvalidField},
		{"vote with string id", `{"action":"vote-up","questionID":"one","votes":2}`, ErrInvalidField},
		{"question without text", `{"action":"new-question","questionID":1}`, ErrInvalidField},
		{"mark without id", `{"action":"mark-question"}`, ErrInvalidField},
		{"joined without count", `{"action":"participant-joined"}`, ErrInvalidField},
		{"logo without path", `{"action":"new-logo"}`, ErrInvalidField},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode([]byte(tc.frame))
			require.Error(t, err)
			assert.Nil(t, ev)

			var de *DecodeError
			require.True(t, errors.As(err, &de), "want *DecodeError, got %T", err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestKinds_ClosedSet(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 9)
	for _, k := range kinds {
		assert.True(t, k.Known(), "kind %s", k)
	}
	assert.False(t, KindUnknown.Known())
	assert.False(t, Kind("bogus-kind").Known())
}
