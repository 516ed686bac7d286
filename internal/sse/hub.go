package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Hub fans recent gateway events out to connected SSE clients. Slow clients
// drop events rather than blocking the broadcast path.
type Hub struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[chan []byte]struct{}),
	}
}

func (h *Hub) Broadcast(b []byte) {
	if !json.Valid(b) {
		b, _ = json.Marshal(map[string]any{
			"event":   "raw",
			"payload": string(b),
		})
	}
	msg := append([]byte(nil), b...)

	h.mu.Lock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, 25)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		client := h.subscribe()
		defer h.unsubscribe(client)

		bw := bufio.NewWriter(w)
		writeEvent(bw, []byte(`{"event":"connected"}`))
		_ = bw.Flush()
		flusher.Flush()

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepAlive.C:
				_, _ = bw.WriteString(": keep-alive\n\n")
				_ = bw.Flush()
				flusher.Flush()
			case msg, ok := <-client:
				if !ok {
					return
				}
				writeEvent(bw, msg)
				_ = bw.Flush()
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w *bufio.Writer, data []byte) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", bytes.ReplaceAll(data, []byte("\n"), []byte("")))
}
