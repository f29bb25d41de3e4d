package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"ai-supportdesk-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

// Event is the wire shape for everything pushed over a socket: ticket status
// updates, knowledge index rebuild notices, session housekeeping.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// clusterMessage is the envelope relayed through Redis between instances.
// target_user_id "*" addresses every connected user. Origin lets an instance
// skip its own publishes, which it already delivered locally.
type clusterMessage struct {
	Origin       string          `json:"origin"`
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

// Hub tracks live socket connections per user and relays events across
// instances through Redis pub/sub. Only Run closes client send channels.
type Hub struct {
	clients    map[uuid.UUID][]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	rdb        *redis.Client
	instanceID string
	logger     logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.consumeCluster()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.UserID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.UserID]) == 0 {
					delete(h.clients, client.UserID)
					h.logger.Info("Hub", "Last connection closed", map[string]interface{}{"user_id": client.UserID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast pushes an event to every connected user on every instance.
func (h *Hub) Broadcast(event Event) {
	data, _ := json.Marshal(event)
	h.deliverAll(data)
	h.relay("*", data)
}

// Send pushes an event to all live connections of one user, local and remote.
func (h *Hub) Send(userID uuid.UUID, event Event) {
	data, _ := json.Marshal(event)
	h.deliverTo(userID, data)
	h.relay(userID.String(), data)
}

func (h *Hub) deliverAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, client := range clients {
			h.enqueue(client, data)
		}
	}
}

func (h *Hub) deliverTo(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := h.clients[userID]
	h.mu.RUnlock()
	for _, client := range clients {
		h.enqueue(client, data)
	}
}

// enqueue drops slow consumers: a full send buffer disconnects the client
// rather than blocking the hub.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("Hub", "Send buffer full, disconnecting client", map[string]interface{}{"user_id": client.UserID})
		go func() { h.unregister <- client }()
	}
}

func (h *Hub) relay(target string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, TargetUserID: target, Message: data})
	h.rdb.Publish(context.Background(), clusterChannel, payload)
}

// consumeCluster fans messages from other instances into local connections.
func (h *Hub) consumeCluster() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("cluster message parse error: %v", err)
			continue
		}
		if payload.Origin == h.instanceID {
			continue
		}

		if payload.TargetUserID == "*" {
			h.deliverAll(payload.Message)
			continue
		}

		uid, err := uuid.Parse(payload.TargetUserID)
		if err != nil {
			continue
		}
		h.deliverTo(uid, payload.Message)
	}
}
