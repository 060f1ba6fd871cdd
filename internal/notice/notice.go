// Package notice keeps the transient inline messages shown after a user
// action fails or is refused.
package notice

import (
	"slices"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is how long a notice stays up.
const DefaultTimeout = 3000 * time.Millisecond

// Level of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is one inline message.
type Notice struct {
	ID     int       `json:"id"`
	Level  Level     `json:"level"`
	Text   string    `json:"text"`
	Posted time.Time `json:"posted"`
}

// Board holds the visible notices. Every method must be called on the event
// loop; expiry is posted back onto it.
type Board struct {
	timeout  time.Duration
	post     func(func()) error
	onChange func([]Notice)
	logger   *zap.Logger

	notices []Notice
	nextID  int
}

// NewBoard creates a board. post schedules work on the event loop and
// onChange, when set, is called with the visible notices after every change.
func NewBoard(timeout time.Duration, post func(func()) error, onChange func([]Notice), logger *zap.Logger) *Board {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{timeout: timeout, post: post, onChange: onChange, logger: logger}
}

// Show displays text and schedules its dismissal.
func (b *Board) Show(level Level, text string) int {
	b.nextID++
	n := Notice{ID: b.nextID, Level: level, Text: text, Posted: time.Now()}
	b.notices = append(b.notices, n)
	b.logger.Info("notice shown", zap.Int("notice_id", n.ID), zap.String("level", string(level)), zap.String("text", text))
	b.changed()

	id := n.ID
	time.AfterFunc(b.timeout, func() {
		if err := b.post(func() { b.Dismiss(id) }); err != nil {
			b.logger.Debug("notice expiry dropped", zap.Int("notice_id", id), zap.Error(err))
		}
	})
	return id
}

// Dismiss removes a notice. Unknown IDs are ignored.
func (b *Board) Dismiss(id int) {
	i := slices.IndexFunc(b.notices, func(n Notice) bool { return n.ID == id })
	if i < 0 {
		return
	}
	b.notices = slices.Delete(b.notices, i, i+1)
	b.changed()
}

// Active returns the visible notices, oldest first.
func (b *Board) Active() []Notice { return slices.Clone(b.notices) }

func (b *Board) changed() {
	if b.onChange != nil {
		b.onChange(b.Active())
	}
}
