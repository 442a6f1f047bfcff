package stream

import (
	"context"
	"sync"

	"jurix.app/internal/obs"
	"jurix.app/internal/session"
)

// Broker fan-outs session revocation events to all active subscribers (SSE
// clients and the local watcher loop). Delivery is best effort: the polling
// validator remains the correctness path, so slow subscribers are skipped
// rather than blocked on.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan session.Revocation
	next int
}

// NewBroker initialises an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan session.Revocation)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (b *Broker) Subscribe(ctx context.Context) <-chan session.Revocation {
	ch := make(chan session.Revocation, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers on this instance.
func (b *Broker) Publish(evt session.Revocation) {
	obs.RevocationPublished("local")
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Publisher abstracts where a revocation goes after the local fan-out: the
// plain Broker for single-instance deployments, the RedisBridge when peers
// exist.
type Publisher interface {
	Publish(ctx context.Context, evt session.Revocation)
}

// LocalPublisher adapts a Broker to the Publisher interface.
type LocalPublisher struct {
	Broker *Broker
}

func (p LocalPublisher) Publish(_ context.Context, evt session.Revocation) {
	p.Broker.Publish(evt)
}

// Subscribers reports the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
