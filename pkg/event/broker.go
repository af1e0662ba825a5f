package event

import "sync"

// Broker fans engine events out to any number of host subscribers. Slow
// subscribers miss events rather than stalling the engine.
type Broker[T any] struct {
	stopC      chan struct{}
	broadcastC chan T
	subC       chan chan T
	unsubC     chan chan T

	mu        sync.Mutex
	isStopped bool
}

func NewBroker[T any]() *Broker[T] {
	b := &Broker[T]{
		stopC:      make(chan struct{}),
		broadcastC: make(chan T, 1),
		subC:       make(chan chan T, 1),
		unsubC:     make(chan chan T, 1),
		isStopped:  true,
	}
	return b
}

func (b *Broker[T]) Start() {
	b.mu.Lock()
	b.isStopped = false
	b.mu.Unlock()

	subs := map[chan T]bool{}
	for {
		select {
		case <-b.stopC:
			for c := range subs {
				close(c)
			}
			return
		case newC := <-b.subC:
			subs[newC] = true
		case oldC := <-b.unsubC:
			delete(subs, oldC)
			close(oldC)
		case msg := <-b.broadcastC:
			for subbedC := range subs {
				// non-blocking broadcast
				select {
				case subbedC <- msg:
				default:
				}
			}
		}
	}
}

func (b *Broker[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isStopped {
		return
	}
	b.isStopped = true
	close(b.stopC)
}

func (b *Broker[T]) Subscribe() chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isStopped {
		return nil
	}
	newC := make(chan T, 16)
	b.subC <- newC
	return newC
}

func (b *Broker[T]) Unsubscribe(oldC chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isStopped {
		return
	}
	b.unsubC <- oldC
}

func (b *Broker[T]) Broadcast(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isStopped {
		return
	}
	b.broadcastC <- msg
}
