package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/model"
)

// Client is one socket subscribed to a job. Send is never closed; the hub
// closes done when it drops the client.
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	done chan struct{}
	once sync.Once
}

// NewClient creates a client with a send queue of size buffer.
func NewClient(jobID string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// queue hands data to the writer unless the client is gone or its queue is full.
func (c *Client) queue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Send <- data:
	case <-c.done:
	default:
	}
}

// Hub fans job updates out to subscribed sockets. Publishing never blocks
// the caller: when the queue is full the message is dropped.
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	stopped    chan struct{}

	mu  sync.RWMutex
	log *logger.Logger
}

// BroadcastMessage is a serialized message for one job's subscribers
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.stopped)
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client registered", "job_id", client.JobID)

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug("websocket client unregistered", "job_id", client.JobID)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow reader; drop it rather than stall the hub.
					client.stop()
					delete(h.clients[msg.JobID], client)
				}
			}
			if len(h.clients[msg.JobID]) == 0 {
				delete(h.clients, msg.JobID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.JobID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.stop()
			if len(clients) == 0 {
				delete(h.clients, client.JobID)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for jobID, clients := range h.clients {
		for client := range clients {
			client.stop()
		}
		delete(h.clients, jobID)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopped:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Subscribers returns the number of sockets watching jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Progress pushes the job snapshot to its subscribers.
func (h *Hub) Progress(job model.Job) {
	h.publish(job.ID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		JobID:    job.ID,
		Progress: job.Progress,
		Status:   job.Status,
		Step:     job.Step,
	})
}

// Complete announces the output reference of a finished job.
func (h *Hub) Complete(jobID, output string) {
	h.publish(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Output: output,
	})
}

// Failed announces a terminal failure.
func (h *Hub) Failed(jobID, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: message},
	})
}

func (h *Hub) publish(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("failed to marshal websocket message", "job_id", jobID, "error", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		h.log.Warn("websocket broadcast queue full, dropping message", "job_id", jobID)
	}
}

// HandleConnection serves one socket until the peer goes away. initial, when
// non-nil, is written before any broadcast.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, initial []byte) {
	client := NewClient(jobID, c, 256)
	if initial != nil {
		client.Send <- initial
	}

	h.Register(client)
	defer client.stop()
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-client.done:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "job_id", jobID, "error", err)
			}
			break
		}
		h.handleMessage(client, message)
	}
}

// handleMessage answers client pings. Other messages are ignored.
func (h *Hub) handleMessage(client *Client, message []byte) {
	var msg model.WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Type == model.WSMessageTypePing {
		pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
		client.queue(pong)
	}
}
