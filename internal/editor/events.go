package editor

import (
	"log/slog"
	"sync"

	"github.com/cwbudde/layerpaint/internal/canvas"
)

// Broadcaster fans invalidations out to subscribers. A subscriber whose
// buffer is full misses events instead of blocking the sender. New
// subscribers first receive the most recent event so they can sync.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan canvas.Invalidation]bool
	last    *canvas.Invalidation
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan canvas.Invalidation]bool)}
}

// Subscribe adds a client.
func (b *Broadcaster) Subscribe() chan canvas.Invalidation {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan canvas.Invalidation, 32)
	b.clients[ch] = true
	if b.last != nil {
		ch <- *b.last
	}
	slog.Debug("Editor subscriber added", "total_clients", len(b.clients))
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan canvas.Invalidation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// Broadcast sends ev to every client.
func (b *Broadcaster) Broadcast(ev canvas.Invalidation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &ev
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			slog.Warn("Editor subscriber channel full, skipping event", "seq", ev.Seq, "reason", ev.Reason)
		}
	}
}

// Close closes every client channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan canvas.Invalidation]bool)
}
