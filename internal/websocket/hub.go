// Package websocket pushes mix job progress to subscribed clients. One job
// can have any number of watchers; a watcher subscribes to exactly one job.
package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/wadesconner/rtm-mixer/internal/model"
)

type subscription struct {
	jobID string
	conn  *websocket.Conn
}

// Hub fans job events out to WebSocket subscribers.
type Hub struct {
	mu         sync.RWMutex
	watchers   map[string]map[*websocket.Conn]bool
	register   chan subscription
	unregister chan subscription
	broadcast  chan broadcastMsg
}

type broadcastMsg struct {
	jobID   string
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		watchers:   make(map[string]map[*websocket.Conn]bool),
		register:   make(chan subscription),
		unregister: make(chan subscription),
		broadcast:  make(chan broadcastMsg, 64),
	}
}

// Run processes hub events. Call once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			if h.watchers[sub.jobID] == nil {
				h.watchers[sub.jobID] = make(map[*websocket.Conn]bool)
			}
			h.watchers[sub.jobID][sub.conn] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			if conns := h.watchers[sub.jobID]; conns != nil {
				delete(conns, sub.conn)
				if len(conns) == 0 {
					delete(h.watchers, sub.jobID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.watchers[msg.jobID] {
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					log.Printf("ws write to %s watcher failed: %v", msg.jobID, err)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleConnection blocks serving one subscriber until the socket closes.
func (h *Hub) HandleConnection(conn *websocket.Conn, jobID string) {
	sub := subscription{jobID: jobID, conn: conn}
	h.register <- sub
	defer func() {
		h.unregister <- sub
		conn.Close()
	}()

	// Drain reads so close frames are processed; clients only listen.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) send(jobID string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws marshal failed: %v", err)
		return
	}
	select {
	case h.broadcast <- broadcastMsg{jobID: jobID, payload: payload}:
	default:
		log.Printf("ws broadcast queue full, dropping update for %s", jobID)
	}
}

// BroadcastProgress notifies watchers of a progress change.
func (h *Hub) BroadcastProgress(jobID string, progress int, status model.JobStatus, step string) {
	h.send(jobID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	})
}

// BroadcastComplete notifies watchers that the job finished.
func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	h.send(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError notifies watchers that the job failed.
func (h *Hub) BroadcastError(jobID, code, message string) {
	h.send(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: message},
	})
}
