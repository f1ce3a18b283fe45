package ws

import (
	"sync"

	"jobs-etl/internal/pkg/logging"
)

// Hub fans run events out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	logger     *logging.Logger

	// stopped is closed once Run has returned.
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client, 128),
		logger:     logger,
		stopped:    make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until done is closed. register is
// unbuffered, so a client is either in the map when done fires or sees stopped.
func (h *Hub) Run(done <-chan struct{}) {
	defer h.stopOnce.Do(func() { close(h.stopped) })

	for {
		select {
		case <-done:
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Debug("ws connected", "total_clients", total)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mutex.RLock()
			snapshot := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				snapshot = append(snapshot, c)
			}
			h.mutex.RUnlock()

			for _, client := range snapshot {
				select {
				case client.send <- message:
				default:
					h.remove(client)
				}
			}
			h.logger.Debug("ws broadcast", "clients", len(snapshot))
		}
	}
}

func (h *Hub) remove(client *Client) {
	if client == nil {
		return
	}
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()
	h.logger.Debug("ws disconnected", "total_clients", total)
}

func (h *Hub) isStopped() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}

func (h *Hub) Register(client *Client) {
	if h == nil {
		return
	}
	if h.isStopped() {
		if client != nil {
			close(client.send)
		}
		return
	}
	select {
	case h.register <- client:
	case <-h.stopped:
		// Nothing will ever write to it; let its write pump exit.
		if client != nil {
			close(client.send)
		}
	}
}

func (h *Hub) Unregister(client *Client) {
	if h == nil {
		return
	}
	if h.isStopped() {
		h.remove(client)
		return
	}
	select {
	case h.unregister <- client:
	case <-h.stopped:
		h.remove(client)
	}
}

// Broadcast queues message for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(message []byte) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("ws broadcast dropped", "reason", "buffer_full")
	}
}

func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
