package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/projector"
	"github.com/aura-webinar/liveqa/internal/realtime"
)

type fakeChannels map[string]realtime.ChannelInfo

func (f fakeChannels) Channel(name string) realtime.ChannelInfo {
	if info, ok := f[name]; ok {
		return info
	}
	return realtime.ChannelInfo{Name: name}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func get(t *testing.T, s *Server, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func newHub(t *testing.T) *realtime.Hub {
	t.Helper()
	h := realtime.NewHub(nil, nil)
	t.Cleanup(h.Close)
	return h
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	channels := fakeChannels{
		realtime.ChannelOrganization: {Name: realtime.ChannelOrganization, URL: "ws://x/ws", State: realtime.StateOpen},
	}
	s := New(newHub(t), channels, nil)
	code, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, code)
	var h struct {
		Status   string `json:"status"`
		Channels []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &h))
	assert.Equal(t, "ok", h.Status)
	require.Len(t, h.Channels, 1, "unopened session channel is not listed")
	assert.Equal(t, "open", h.Channels[0].State)

	channels[realtime.ChannelSession] = realtime.ChannelInfo{Name: realtime.ChannelSession, URL: "ws://x/ws/5", State: realtime.StateConnecting, Attempt: 3}
	code, body = get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, body.Success)
	assert.Equal(t, "channel not open", body.Error)
}

func TestHealth_WithoutChannels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	code, body := get(t, New(newHub(t), nil, nil), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
}

func TestState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := newHub(t)
	s := New(hub, nil, nil)

	code, _ := get(t, s, "/state/session/5")
	assert.Equal(t, http.StatusNotFound, code)

	hub.Publish(realtime.Update{
		Topic:  realtime.TopicSession("5"),
		Effect: projector.Effect{Kind: projector.EffectQuestionAdded, QuestionID: 1},
		Session: &projector.Snapshot{
			QuestionsByTime: []models.Question{{ID: 1, Text: "Why?"}},
		},
	})
	hub.Publish(realtime.Update{
		Topic:        realtime.TopicOrganization,
		Effect:       projector.Effect{Kind: projector.EffectBrandingChanged, LogoPath: "/logo.png"},
		Organization: &projector.OrganizationSnapshot{Branding: models.Branding{LogoPath: "/logo.png"}},
	})

	code, body := get(t, s, "/state/session/5")
	require.Equal(t, http.StatusOK, code)
	var u realtime.Update
	require.NoError(t, json.Unmarshal(body.Data, &u))
	assert.Equal(t, projector.EffectQuestionAdded, u.Effect.Kind)
	require.NotNil(t, u.Session)
	assert.Equal(t, "Why?", u.Session.QuestionsByTime[0].Text)

	code, body = get(t, s, "/state/organization")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body.Data, &u))
	assert.Equal(t, "/logo.png", u.Organization.Branding.LogoPath)

	_, body = get(t, s, "/state")
	var all map[string]realtime.Update
	require.NoError(t, json.Unmarshal(body.Data, &all))
	assert.Len(t, all, 2)
	assert.Contains(t, all, "session:5")
}
