// file: internal/realtime/events.go
// version: 1.3.0
// guid: 1f8c4b7a-9d2e-4a6c-8b3f-5e0d7a9c2b64

package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventScanProgress  EventType = "scan.progress"
	EventScanStatus    EventType = "scan.status"
	EventScanLog       EventType = "scan.log"
	EventArtistUpdated EventType = "artist.updated"
)

// Event represents a real-time event to send to clients
type Event struct {
	Type      EventType              `json:"type"`
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID         string
	Channel    chan *Event
	Operations map[string]bool // Operations this client is interested in
	mu         sync.RWMutex
}

// NewClient creates a new SSE client
func NewClient(id string) *Client {
	return &Client{
		ID:         id,
		Channel:    make(chan *Event, 100),
		Operations: make(map[string]bool),
	}
}

// Subscribe subscribes the client to an operation
func (c *Client) Subscribe(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Operations[operationID] = true
}

// Unsubscribe unsubscribes the client from an operation
func (c *Client) Unsubscribe(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Operations, operationID)
}

// IsSubscribed checks if client is subscribed to an operation
func (c *Client) IsSubscribed(operationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Operations[operationID]
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]*Client),
	}
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("Client %s registered, total clients: %d", client.ID, len(h.clients))
}

// UnregisterClient removes a client
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		log.Printf("Client %s unregistered, remaining clients: %d", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all subscribed clients
func (h *EventHub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		// Send to clients if:
		// 1. Event has no ID (system-wide events), OR
		// 2. Client has no subscriptions (wants all events), OR
		// 3. Client is subscribed to this specific operation
		if event.ID == "" || len(client.Operations) == 0 || client.IsSubscribed(event.ID) {
			select {
			case client.Channel <- event:
			default:
				log.Printf("Warning: Client %s channel full, dropping event", client.ID)
			}
		}
	}
}

// SendScanProgress sends a scan progress event. A percentage of -1
// means indeterminate.
func (h *EventHub) SendScanProgress(operationID, statusText string, percentage, newItemCount int, currentItemPath string) {
	event := &Event{
		Type:      EventScanProgress,
		ID:        operationID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"operation_id":      operationID,
			"status_text":       statusText,
			"percentage":        percentage,
			"new_item_count":    newItemCount,
			"current_item_path": currentItemPath,
		},
	}
	h.Broadcast(event)
}

// SendScanStatus sends a scan status change event
func (h *EventHub) SendScanStatus(operationID, status string, details map[string]interface{}) {
	event := &Event{
		Type:      EventScanStatus,
		ID:        operationID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"operation_id": operationID,
			"status":       status,
			"details":      details,
		},
	}
	h.Broadcast(event)
}

// SendScanLog sends a scan log event
func (h *EventHub) SendScanLog(operationID, level, message string, details *string) {
	data := map[string]interface{}{
		"operation_id": operationID,
		"level":        level,
		"message":      message,
	}
	if details != nil {
		data["details"] = *details
	}

	event := &Event{
		Type:      EventScanLog,
		ID:        operationID,
		Timestamp: time.Now(),
		Data:      data,
	}
	h.Broadcast(event)
}

// SendArtistUpdated notifies observers that enrichment changed an
// artist, so cached art can be refreshed.
func (h *EventHub) SendArtistUpdated(artistID int, localImagePath string) {
	event := &Event{
		Type:      EventArtistUpdated,
		ID:        "",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"artist_id":        artistID,
			"local_image_path": localImagePath,
		},
	}
	h.Broadcast(event)
}

// GetClientCount returns the number of connected clients
func (h *EventHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE handles Server-Sent Events connection
func (h *EventHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("X-Accel-Buffering", "no")

	clientID := fmt.Sprintf("client-%d", time.Now().UnixNano())
	client := NewClient(clientID)

	if operationID := c.Query("operation"); operationID != "" {
		client.Subscribe(operationID)
	}

	h.RegisterClient(client)
	defer h.UnregisterClient(clientID)

	initialEvent := &Event{
		Type:      "connection.established",
		ID:        "",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"client_id": clientID,
		},
	}

	if data, err := json.Marshal(initialEvent); err == nil {
		_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
		c.Writer.Flush()
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event := <-client.Channel:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error marshaling event: %v", err)
				continue
			}

			_, err = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
			if err != nil {
				log.Printf("Error writing to client %s: %v", clientID, err)
				return
			}
			c.Writer.Flush()
		case <-ticker.C:
			heartbeat := map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now(),
			}
			if data, err := json.Marshal(heartbeat); err == nil {
				_, _ = c.Writer.Write([]byte(fmt.Sprintf("data: %s\n\n", data)))
				c.Writer.Flush()
			}
		}
	}
}

// Global event hub instance
var GlobalHub *EventHub

// InitializeEventHub initializes the global event hub
func InitializeEventHub() {
	if GlobalHub != nil {
		log.Println("Warning: event hub already initialized")
		return
	}
	GlobalHub = NewEventHub()
}
