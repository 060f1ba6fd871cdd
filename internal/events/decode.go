package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aura-webinar/liveqa/internal/models"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingAction  = errors.New("missing action discriminator")
	ErrInvalidField   = errors.New("invalid field")
)

// DecodeError reports a frame that cannot be turned into an Event.
type DecodeError struct {
	Action string // empty when the discriminator itself was unreadable
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Action == "" {
		return "decode frame: " + e.Err.Error()
	}
	return fmt.Sprintf("decode %q frame: %v", e.Action, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode validates the action discriminator of a text frame and then reads the
// fields of that kind. Unrecognised actions decode to Unknown without error.
func Decode(frame []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
	}
	if fields == nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: not an object", ErrMalformedFrame)}
	}

	action, ok, err := field[string](fields, "action")
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if !ok || action == "" {
		return nil, &DecodeError{Err: ErrMissingAction}
	}

	ev, err := decodeKind(Kind(action), fields)
	if err != nil {
		return nil, &DecodeError{Action: action, Err: err}
	}
	return ev, nil
}

func decodeKind(kind Kind, f map[string]json.RawMessage) (Event, error) {
	switch kind {
	case KindNewQuestion:
		id, err := required[int64](f, "questionID")
		if err != nil {
			return nil, err
		}
		text, err := required[string](f, "text")
		if err != nil {
			return nil, err
		}
		q := models.Question{ID: models.QuestionID(id), Text: text}
		if q.CreatedAt, _, err = field[string](f, "createdAt"); err != nil {
			return nil, err
		}
		if q.Votes, err = count(f, "votes", false); err != nil {
			return nil, err
		}
		if q.Answered, _, err = field[bool](f, "answered"); err != nil {
			return nil, err
		}
		if q.UserHasVoted, _, err = field[bool](f, "userHasVoted"); err != nil {
			return nil, err
		}
		return NewQuestion{Question: q}, nil

	case KindVoteChanged:
		id, err := required[int64](f, "questionID")
		if err != nil {
			return nil, err
		}
		votes, err := count(f, "votes", true)
		if err != nil {
			return nil, err
		}
		return VoteChanged{QuestionID: models.QuestionID(id), Votes: votes}, nil

	case KindQuestionAnswered:
		id, err := required[int64](f, "questionID")
		if err != nil {
			return nil, err
		}
		return QuestionAnswered{QuestionID: models.QuestionID(id)}, nil

	case KindSessionStarted:
		section, _, err := field[int](f, "sectionID")
		if err != nil {
			return nil, err
		}
		attendance, _, err := field[int](f, "attendanceID")
		if err != nil {
			return nil, err
		}
		return SessionStarted{SectionID: section, AttendanceID: attendance}, nil

	case KindSessionEnded:
		section, _, err := field[int](f, "sectionID")
		if err != nil {
			return nil, err
		}
		classSession, _, err := field[int](f, "classSessionIDInt")
		if err != nil {
			return nil, err
		}
		return SessionEnded{SectionID: section, ClassSessionID: classSession}, nil

	case KindParticipantJoined:
		n, err := count(f, "count", true)
		if err != nil {
			return nil, err
		}
		return ParticipantJoined{Count: n}, nil

	case KindParticipantLeft:
		_, has := present(f, "count")
		n, err := count(f, "count", false)
		if err != nil {
			return nil, err
		}
		return ParticipantLeft{Count: n, HasCount: has}, nil

	case KindBrandingChanged:
		path, err := required[string](f, "logoPath")
		if err != nil {
			return nil, err
		}
		return BrandingChanged{LogoPath: path}, nil

	case KindDemoWarning:
		return DemoWarning{}, nil

	default:
		return Unknown{Action: string(kind)}, nil
	}
}

// present returns the raw value of a field, treating JSON null as absent.
func present(f map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := f[name]
	if !ok || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

func field[T any](f map[string]json.RawMessage, name string) (T, bool, error) {
	var v T
	raw, ok := present(f, name)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("%w %q: %v", ErrInvalidField, name, err)
	}
	return v, true, nil
}

func required[T any](f map[string]json.RawMessage, name string) (T, error) {
	v, ok, err := field[T](f, name)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w %q: missing", ErrInvalidField, name)
	}
	return v, nil
}

// count reads a non-negative integer field.
func count(f map[string]json.RawMessage, name string, must bool) (int, error) {
	var (
		n   int
		ok  bool
		err error
	)
	if must {
		n, err = required[int](f, name)
		ok = err == nil
	} else {
		n, ok, err = field[int](f, name)
	}
	if err != nil {
		return 0, err
	}
	if ok && n < 0 {
		return 0, fmt.Errorf("%w %q: negative value %d", ErrInvalidField, name, n)
	}
	return n, nil
}
