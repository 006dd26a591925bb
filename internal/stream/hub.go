package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"backend-stride/internal/run"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hub fans tracker events out to websocket clients by topic (one topic per user).
// With redis configured, broadcasts are relayed to hubs in other processes.
type Hub struct {
	redis   *redis.Client
	origin  string
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	ready  chan struct{}
	cancel context.CancelFunc
}

type Client struct {
	Topic string
	Send  chan []byte
}

type relayMessage struct {
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		redis:   redisClient,
		origin:  uuid.NewString(),
		clients: map[string]map[*Client]struct{}{},
		ready:   make(chan struct{}),
		cancel:  cancel,
	}

	if redisClient != nil {
		go h.subscribeRedis(ctx)
	} else {
		close(h.ready)
	}
	return h
}

// Ready is closed once the redis relay is subscribed (immediately without redis).
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Close() {
	h.cancel()
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[client.Topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, client.Topic)
		}
	}
	close(client.Send)
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	h.deliver(topic, payload)

	if h.redis != nil {
		msg, _ := json.Marshal(relayMessage{Origin: h.origin, Payload: payload})
		err := h.redis.Publish(context.Background(), redisChannel(topic), msg).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// Forward broadcasts every event from a tracker subscription until the channel
// is closed.
func (h *Hub) Forward(topic string, events <-chan run.Event) {
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("encode %s event: %v", ev.Kind, err)
			continue
		}
		h.Broadcast(topic, payload)
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, redisChannel("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error: %v", err)
		close(h.ready)
		return
	}
	close(h.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil || relay.Origin == h.origin {
				continue
			}
			h.deliver(topicFromChannel(msg.Channel), relay.Payload)
		}
	}
}

func redisChannel(topic string) string {
	return "runs:" + topic + ":events"
}

func topicFromChannel(ch string) string {
	// runs:{topic}:events
	const prefix = "runs:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}

func (h *Hub) clientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
