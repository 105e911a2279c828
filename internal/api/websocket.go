package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/synapse-fi/bridge-hub/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Entity dashboards connect cross-origin; auth happens on the route.
	},
}

// StreamHub maintains the set of connected entity dashboards and pushes
// every new advisory to all of them.
type StreamHub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *StreamHub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Set write deadline to prevent blocked clients from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := client.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				log.Printf("[Stream] Websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections
func (h *StreamHub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	log.Printf("[Stream] New client connected. Total clients: %d", len(h.clients))

	// Keep alive loop (we only push down, but we must read to handle disconnects)
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[Stream] Client disconnected. Total clients: %d", len(h.clients))
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Stream] Websocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast queues JSON data for all connected clients. Non-blocking: the
// ingest pipeline calls this while holding its admission slot, so slow
// dashboards cost a dropped broadcast, never a stalled ingest. The poll
// endpoints remain the reliable delivery path.
func (h *StreamHub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		log.Println("[Stream] Broadcast buffer full, dropping message")
	}
}

// BroadcastAdvisory returns the advisory hook that fans each built advisory
// out to every connected dashboard.
func BroadcastAdvisory(stream *StreamHub) func(models.Advisory) {
	return func(adv models.Advisory) {
		payload := gin.H{
			"type":     "advisory",
			"advisory": adv,
		}
		data, _ := json.Marshal(payload)
		stream.Broadcast(data)
		log.Printf("[Stream] Broadcast %s advisory %s (%d entities, score %d)",
			adv.Severity, adv.AdvisoryID, adv.EntityCount, adv.FraudScore)
	}
}
