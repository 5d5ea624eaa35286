package sse

import (
	"encoding/json"
	"sync"

	"github.com/glmanhtu/PapyrusViz-sub000/internal/core/progress"

	log "github.com/sirupsen/logrus"
)

// Client is one connected SSE consumer.
type Client chan []byte

// subscription ties a client to the job it wants updates for. An empty
// jobID subscribes to every job.
type subscription struct {
	client Client
	jobID  string
}

// Hub fans job progress out to connected SSE clients.
type Hub struct {
	clients    map[Client]string
	broadcast  chan jobMessage
	register   chan subscription
	unregister chan Client
	mu         sync.Mutex
}

// JobUpdate is the wire format of one progress message.
type JobUpdate struct {
	JobID string `json:"job_id"`
	progress.Message
}

type jobMessage struct {
	jobID string
	data  []byte
}

// NewHub creates a hub. Run must be started in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]string),
		broadcast:  make(chan jobMessage, 100),
		register:   make(chan subscription),
		unregister: make(chan Client),
	}
}

// Run processes registrations and broadcasts until the process exits.
func (h *Hub) Run() {
	log.Info("SSE hub started")
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub.client] = sub.jobID
			count := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered (job filter %q). Total clients: %d", sub.jobID, count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client, filter := range h.clients {
				if filter != "" && filter != message.jobID {
					continue
				}
				select {
				case client <- message.data:
				default:
					// Client channel full or closed; drop the client.
					log.Warn("SSE client not keeping up, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register subscribes a client to the updates of one job. An empty jobID
// receives every job's updates.
func (h *Hub) Register(client Client, jobID string) {
	h.register <- subscription{client: client, jobID: jobID}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client Client) {
	h.unregister <- client
}

// BroadcastProgress serializes one progress message and queues it for all
// subscribers of the job. The send never blocks the producing job.
func (h *Hub) BroadcastProgress(jobID string, m progress.Message) {
	data, err := json.Marshal(JobUpdate{JobID: jobID, Message: m})
	if err != nil {
		log.Errorf("Failed to marshal progress update: %v", err)
		return
	}
	select {
	case h.broadcast <- jobMessage{jobID: jobID, data: data}:
	default:
		log.Warn("SSE broadcast channel full, progress update dropped")
	}
}

// Sink adapts the hub to the progress.Sink interface for one job.
type Sink struct {
	hub   *Hub
	jobID string
}

// NewSink creates a progress sink forwarding to hub under jobID.
func (h *Hub) NewSink(jobID string) *Sink {
	return &Sink{hub: h, jobID: jobID}
}

// Send forwards the message to the hub.
func (s *Sink) Send(m progress.Message) {
	s.hub.BroadcastProgress(s.jobID, m)
}
