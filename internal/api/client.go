// Package api calls the classroom REST endpoints behind the live view:
// submitting, upvoting and answering questions, and listing a session's
// questions for resync.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/config"
	"github.com/aura-webinar/liveqa/internal/models"
)

// ErrAlreadyVoted is returned by Upvote when the viewer voted on the question before.
var ErrAlreadyVoted = errors.New("already voted")

const (
	breakerFailures = 5
	breakerOpenFor  = 30 * time.Second
	maxErrorBody    = 4096
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// Listing is the authoritative question listing of a session.
type Listing struct {
	ByTime           []models.Question
	ByVote           []models.Question
	ByTimeUnanswered []models.Question
	ByVoteUnanswered []models.Question
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	cookie  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a client for the server at baseURL. cookie, when set, is
// sent as the Cookie header of every request.
func NewClient(baseURL, cookie string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cookie:  cookie,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "classroom-api",
		Timeout: breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrAlreadyVoted) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.Code < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// NewClientFromConfig creates a client from the server and API settings.
func NewClientFromConfig(cfg *config.Config, logger *zap.Logger) *Client {
	return NewClient(cfg.Server.BaseURL, cfg.Server.AuthCookie, cfg.API.Timeout, logger)
}

// SubmitQuestion posts a question to a session. The question itself arrives
// back over the session channel.
func (c *Client) SubmitQuestion(ctx context.Context, sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("submit question: empty text")
	}
	form := url.Values{"questionText": {text}}
	return c.do(ctx, "submit question", http.MethodPost, "/api/questions/"+url.PathEscape(sessionID),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil)
}

// Upvote votes for a question. The new count arrives over the session channel.
func (c *Client) Upvote(ctx context.Context, id models.QuestionID) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "upvote", http.MethodPost, "/api/vote-up/"+formatID(id), nil, "", &out); err != nil {
		return err
	}
	if out.Status == "already voted" {
		return ErrAlreadyVoted
	}
	return nil
}

// MarkAnswered marks a question answered. Moderators only.
func (c *Client) MarkAnswered(ctx context.Context, id models.QuestionID) error {
	return c.do(ctx, "mark answered", http.MethodPost, "/api/mark-question/"+formatID(id), nil, "", nil)
}

// FetchQuestions lists every question of a session.
func (c *Client) FetchQuestions(ctx context.Context, sessionID string) (*Listing, error) {
	var out struct {
		ByTime           []listedQuestion `json:"questionsByTime"`
		ByVote           []listedQuestion `json:"questionsByVote"`
		ByTimeUnanswered []listedQuestion `json:"questionsByTimeUnanswered"`
		ByVoteUnanswered []listedQuestion `json:"questionsByVoteUnanswered"`
	}
	if err := c.do(ctx, "fetch questions", http.MethodGet, "/api/questions/"+url.PathEscape(sessionID), nil, "", &out); err != nil {
		return nil, err
	}
	return &Listing{
		ByTime:           toModels(out.ByTime),
		ByVote:           toModels(out.ByVote),
		ByTimeUnanswered: toModels(out.ByTimeUnanswered),
		ByVoteUnanswered: toModels(out.ByVoteUnanswered),
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", op, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.cookie != "" {
			req.Header.Set("Cookie", c.cookie)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			return nil, &StatusError{Op: op, Code: resp.StatusCode}
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Debug("request short-circuited", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}

// listedQuestion is a question as the listing endpoint encodes it.
type listedQuestion struct {
	ID           models.QuestionID
	Text         string
	Votes        int
	Answered     bool
	CreatedAt    string
	UserHasVoted bool
}

func toModels(in []listedQuestion) []models.Question {
	out := make([]models.Question, 0, len(in))
	for _, q := range in {
		out = append(out, models.Question{
			ID:           q.ID,
			Text:         q.Text,
			Votes:        q.Votes,
			Answered:     q.Answered,
			CreatedAt:    q.CreatedAt,
			UserHasVoted: q.UserHasVoted,
		})
	}
	return out
}

func formatID(id models.QuestionID) string {
	return strconv.FormatInt(int64(id), 10)
}
