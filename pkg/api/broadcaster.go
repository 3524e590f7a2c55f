package api

import (
	"encoding/json"
	"sync"
	"time"
)

// Broadcaster fans stream events out to every connected client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewBroadcaster creates a broadcaster with no clients.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel of encoded events and a cleanup function the
// caller must run when the client goes away.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast encodes data as a StreamEvent and offers it to every client.
// A client whose buffer is full misses the event.
func (b *Broadcaster) Broadcast(kind string, data interface{}) {
	payload, err := json.Marshal(StreamEvent{
		Time: time.Now().UnixNano(),
		Kind: kind,
		Data: data,
	})
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Clients returns the number of subscribed clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
