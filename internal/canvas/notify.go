package canvas

import (
	"image"
	"log/slog"
	"sync"
	"time"
)

// Invalidation is sent to subscribers whenever the composite cache is
// dropped, so a UI can schedule a repaint instead of polling.
type Invalidation struct {
	// Seq increases by one with every invalidation of this canvas.
	Seq     uint64  `json:"seq"`
	Reason  string  `json:"reason"`
	LayerID LayerID `json:"layerId,omitempty"`
	// Region is the canvas area that may have changed; empty means the
	// whole canvas.
	Region    image.Rectangle `json:"region"`
	Timestamp time.Time       `json:"timestamp"`
}

// broadcaster fans invalidations out to subscribers without ever blocking
// the writer: a subscriber whose buffer is full misses the event.
type broadcaster struct {
	mu      sync.RWMutex
	clients map[chan Invalidation]bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{clients: make(map[chan Invalidation]bool)}
}

func (b *broadcaster) subscribe() chan Invalidation {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Invalidation, 16)
	b.clients[ch] = true
	slog.Debug("Canvas subscriber added", "total_clients", len(b.clients))
	return ch
}

func (b *broadcaster) unsubscribe(ch chan Invalidation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

func (b *broadcaster) broadcast(ev Invalidation) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			slog.Warn("Canvas subscriber channel full, dropping invalidation", "seq", ev.Seq)
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan Invalidation]bool)
}
