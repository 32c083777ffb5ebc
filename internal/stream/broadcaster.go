package stream

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-disaster-news/internal/models"
)

const subscriberBuffer = 16

// Broadcaster fans retrieval runs out to live subscribers.
type Broadcaster struct {
	subscribers map[uint64]chan *models.RetrievalRun
	nextID      atomic.Uint64
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.RetrievalRun),
	}
}

// Subscribe registers a subscriber. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.RetrievalRun) {
	id := b.nextID.Add(1)
	ch := make(chan *models.RetrievalRun, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Broadcast(r *models.RetrievalRun) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- r:
		default:
			// Skip slow subscribers
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
