// Package realtime streams activation changes to dashboards over
// Server-Sent Events.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Broker handles Server-Sent Events (SSE) clients and broadcasting
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 100),
		done:       make(chan struct{}),
	}
}

// Run starts the broker loop and returns when ctx ends, closing every
// client stream.
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			n := len(b.clients)
			b.mu.Unlock()
			log.Debug().Int("clients", n).Msg("SSE client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			n := len(b.clients)
			b.mu.Unlock()
			log.Debug().Int("clients", n).Msg("SSE client disconnected")

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Slow client, drop the message for it
				}
			}
			b.mu.RUnlock()

		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			return
		}
	}
}

// Clients returns the number of connected streams
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientChan := make(chan []byte, 10)
	select {
	case b.register <- clientChan:
	case <-r.Context().Done():
		return
	case <-b.done:
		http.Error(w, "Event stream closed", http.StatusServiceUnavailable)
		return
	}
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			select {
			case b.unregister <- clientChan:
			case <-b.done:
			}
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Publish broadcasts message to every client as event channel. It never
// blocks: a full buffer drops the message.
func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	data := map[string]interface{}{
		"event":   channel,
		"payload": message,
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}

	select {
	case b.broadcast <- jsonBytes:
		return nil
	default:
		return fmt.Errorf("broadcast buffer full, %s event dropped", channel)
	}
}
