package realtime

import (
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/projector"
)

// TopicOrganization carries organization channel updates.
const TopicOrganization = "organization"

// TopicSession is the topic of one session's updates.
func TopicSession(sessionID string) string { return "session:" + sessionID }

const mirrorQueue = 256

// Update is one projected change, published after the projector ran.
type Update struct {
	Topic        string                          `json:"topic"`
	Effect       projector.Effect                `json:"effect"`
	Session      *projector.Snapshot             `json:"session,omitempty"`
	Organization *projector.OrganizationSnapshot `json:"organization,omitempty"`
	At           time.Time                       `json:"at"`
}

// Publisher mirrors updates to other processes (Redis).
type Publisher interface {
	PublishUpdate(topic string, payload []byte) error
}

// Subscription receives updates of one topic until cancelled.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Update
	hub   *Hub
	ch    chan Update
}

// Cancel removes the subscription and closes C.
func (s *Subscription) Cancel() { s.hub.unsubscribe(s) }

// Hub fans updates out to renderers and observers. Slow subscribers miss
// updates rather than stall the event loop.
type Hub struct {
	// topic -> subscriptionID -> channel
	topics map[string]map[string]chan Update
	latest map[string]Update
	mu     sync.RWMutex
	logger *zap.Logger

	mirror    Publisher
	mirrorCh  chan Update
	mirrorEnd chan struct{}
	closed    bool
}

// NewHub creates a hub. mirror may be nil.
func NewHub(logger *zap.Logger, mirror Publisher) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		topics:    make(map[string]map[string]chan Update),
		latest:    make(map[string]Update),
		logger:    logger,
		mirror:    mirror,
		mirrorEnd: make(chan struct{}),
	}
	if mirror != nil {
		h.mirrorCh = make(chan Update, mirrorQueue)
		go h.mirrorLoop()
	} else {
		close(h.mirrorEnd)
	}
	return h
}

// Subscribe registers a subscriber with a buffer of the given size.
func (h *Hub) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)
	s := &Subscription{ID: uuid.New().String(), Topic: topic, C: ch, hub: h, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return s
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]chan Update)
	}
	h.topics[topic][s.ID] = ch
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", zap.String("subscription_id", s.ID), zap.String("topic", topic))
	return s
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	if m, ok := h.topics[s.Topic]; ok {
		if ch, ok := m[s.ID]; ok {
			delete(m, s.ID)
			close(ch)
		}
		if len(m) == 0 {
			delete(h.topics, s.Topic)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("subscriber left", zap.String("subscription_id", s.ID), zap.String("topic", s.Topic))
}

// Publish delivers u to local subscribers and queues it for the mirror.
func (h *Hub) Publish(u Update) {
	if u.At.IsZero() {
		u.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest[u.Topic] = u
	for id, ch := range h.topics[u.Topic] {
		select {
		case ch <- u:
		default:
			h.logger.Debug("subscriber buffer full, update dropped", zap.String("subscription_id", id), zap.String("topic", u.Topic))
		}
	}
	if h.mirrorCh != nil {
		select {
		case h.mirrorCh <- u:
		default:
			h.logger.Warn("mirror queue full, update dropped", zap.String("topic", u.Topic))
		}
	}
}

// Latest returns the most recent update of a topic.
func (h *Hub) Latest(topic string) (Update, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[topic]
	return u, ok
}

// Topics lists topics that have received at least one update.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.latest))
}

// Subscribers returns the number of subscribers of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close stops the mirror and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	if h.mirrorCh != nil {
		close(h.mirrorCh)
	}
	for topic, m := range h.topics {
		for id, ch := range m {
			close(ch)
			delete(m, id)
		}
		delete(h.topics, topic)
	}
	h.mu.Unlock()
	<-h.mirrorEnd
}

func (h *Hub) mirrorLoop() {
	defer close(h.mirrorEnd)
	for u := range h.mirrorCh {
		data, err := json.Marshal(u)
		if err != nil {
			h.logger.Warn("encode update for mirror", zap.Error(err))
			continue
		}
		if err := h.mirror.PublishUpdate(u.Topic, data); err != nil {
			h.logger.Warn("mirror publish failed", zap.String("topic", u.Topic), zap.Error(err))
		}
	}
}
