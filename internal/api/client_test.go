package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/liveqa/internal/models"
)

type fakeServer struct {
	*httptest.Server
	mu        sync.Mutex // held for the duration of every request
	voted     map[string]bool
	submitted []string
	marked    []string
	cookies   []string
	failures  atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fakeServer{voted: map[string]bool{}}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cookies = append(f.cookies, c.GetHeader("Cookie"))
		c.Next()
	})
	r.POST("/api/questions/:classSessionID", func(c *gin.Context) {
		f.submitted = append(f.submitted, c.Param("classSessionID")+":"+c.PostForm("questionText"))
		c.Status(http.StatusOK)
	})
	r.POST("/api/vote-up/:questionID", func(c *gin.Context) {
		id := c.Param("questionID")
		if f.voted[id] {
			c.JSON(http.StatusOK, gin.H{"status": "already voted"})
			return
		}
		f.voted[id] = true
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.POST("/api/mark-question/:questionID", func(c *gin.Context) {
		if c.Param("questionID") == "404" {
			c.Status(http.StatusNotFound)
			return
		}
		f.marked = append(f.marked, c.Param("questionID"))
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.GET("/api/questions/:classSessionID", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"moderatorType": "teacher",
			"questionsByTime": []gin.H{
				{"ID": 2, "SessionID": 5, "Text": "second", "Votes": 1, "Answered": true, "CreatedAt": "2024-03-01 10:16:00", "UserHasVoted": true},
				{"ID": 1, "SessionID": 5, "Text": "first", "Votes": 3, "CreatedAt": "2024-03-01 10:15:00"},
			},
			"questionsByVote": []gin.H{
				{"ID": 1, "Text": "first", "Votes": 3},
				{"ID": 2, "Text": "second", "Votes": 1, "Answered": true},
			},
			"questionsByVoteUnanswered": []gin.H{{"ID": 1, "Text": "first", "Votes": 3}},
			"questionsByTimeUnanswered": []gin.H{{"ID": 1, "Text": "first", "Votes": 3}},
			"user":                      9,
		})
	})
	r.GET("/api/broken/:id", func(c *gin.Context) {
		f.failures.Add(1)
		c.Status(http.StatusInternalServerError)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func TestClient_SubmitQuestion(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL+"/", "session=abc", time.Second, nil)

	require.NoError(t, c.SubmitQuestion(context.Background(), "5", "Is this on the exam?"))
	srv.locked(func() {
		assert.Equal(t, []string{"5:Is this on the exam?"}, srv.submitted)
		assert.Equal(t, []string{"session=abc"}, srv.cookies)
	})

	assert.Error(t, c.SubmitQuestion(context.Background(), "5", "   "))
	srv.locked(func() { assert.Len(t, srv.submitted, 1) })
}

func TestClient_Upvote(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, "", time.Second, nil)

	require.NoError(t, c.Upvote(context.Background(), 12))
	err := c.Upvote(context.Background(), 12)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestClient_MarkAnswered(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, "", time.Second, nil)

	require.NoError(t, c.MarkAnswered(context.Background(), 7))
	srv.locked(func() { assert.Equal(t, []string{"7"}, srv.marked) })

	err := c.MarkAnswered(context.Background(), 404)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClient_FetchQuestions(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, "", time.Second, nil)

	l, err := c.FetchQuestions(context.Background(), "5")
	require.NoError(t, err)

	require.Len(t, l.ByTime, 2)
	assert.Equal(t, models.Question{
		ID: 2, Text: "second", Votes: 1, Answered: true, CreatedAt: "2024-03-01 10:16:00", UserHasVoted: true,
	}, l.ByTime[0])
	assert.Equal(t, []models.QuestionID{1, 2}, []models.QuestionID{l.ByVote[0].ID, l.ByVote[1].ID})
	assert.Len(t, l.ByVoteUnanswered, 1)
	assert.Len(t, l.ByTimeUnanswered, 1)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, "", time.Second, nil)

	for i := 0; i < breakerFailures; i++ {
		err := c.do(context.Background(), "broken", http.MethodGet, "/api/broken/1", nil, "", nil)
		var se *StatusError
		require.ErrorAs(t, err, &se)
	}

	err := c.do(context.Background(), "broken", http.MethodGet, "/api/broken/1", nil, "", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(breakerFailures), srv.failures.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, "", time.Second, nil)

	for i := 0; i < breakerFailures+2; i++ {
		require.Error(t, c.MarkAnswered(context.Background(), 404))
	}
	require.NoError(t, c.MarkAnswered(context.Background(), 8))
}
