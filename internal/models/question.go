package models

// QuestionID identifies a question within a class session.
type QuestionID int64

// Question represents a question asked during a live class session.
type Question struct {
	ID           QuestionID `json:"questionID"`
	Text         string     `json:"text"`
	CreatedAt    string     `json:"createdAt"` // server timestamp, opaque to the client
	Votes        int        `json:"votes"`
	Answered     bool       `json:"answered"`
	UserHasVoted bool       `json:"userHasVoted"`
}
