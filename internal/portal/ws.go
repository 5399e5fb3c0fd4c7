package portal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// wsHub fans status updates out to connected portal pages.
type wsHub struct {
	clients map[*wsClient]struct{}
	mu      sync.Mutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	messages   chan []byte

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		messages:   make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case data := <-h.messages:
			h.mu.Lock()
			var slow []*wsClient
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			for _, client := range slow {
				delete(h.clients, client)
				close(client.send)
				h.logger.Warn("ws client evicted (too slow)")
			}
			h.mu.Unlock()
		}
	}
}

func (h *wsHub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *wsHub) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal", "error", err)
		return
	}
	select {
	case h.messages <- data:
	case <-h.done:
	default:
		h.logger.Warn("ws broadcast queue full, dropping update")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hub := s.hub
	s.mu.Unlock()
	if hub == nil {
		http.Error(w, "portal not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.logger.Error("ws accept", "error", err)
		return
	}
	conn.SetReadLimit(1024)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close(websocket.StatusGoingAway, "portal shutdown")
		return
	}

	go wsWritePump(client)
	wsReadPump(hub, client)
}

func wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

func wsReadPump(hub *wsHub, client *wsClient) {
	defer func() {
		select {
		case hub.unregister <- client:
		case <-hub.done:
			client.conn.Close(websocket.StatusGoingAway, "portal shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-hub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Portal clients only listen; drain until the connection drops.
	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			return
		}
	}
}
