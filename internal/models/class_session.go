package models

import "fmt"

// SessionStatus is the live state of a class session as seen by the client.
type SessionStatus int

const (
	// SessionStatusUnknown is the state at channel open, before any lifecycle event.
	SessionStatusUnknown SessionStatus = iota
	SessionStatusActive
	SessionStatusEnded
)

func (s SessionStatus) String() string {
	switch s {
	case SessionStatusActive:
		return "active"
	case SessionStatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its name in JSON snapshots.
func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names written by MarshalText.
func (s *SessionStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = SessionStatusActive
	case "ended":
		*s = SessionStatusEnded
	case "unknown", "":
		*s = SessionStatusUnknown
	default:
		return fmt.Errorf("unknown session status %q", b)
	}
	return nil
}

// ClassSession identifies one live class meeting.
type ClassSession struct {
	ID               string        `json:"sessionID"`
	Status           SessionStatus `json:"status"`
	ParticipantCount int           `json:"participantCount"`
}

// Active reports whether the session has been started and not ended.
func (s ClassSession) Active() bool {
	return s.Status == SessionStatusActive
}
