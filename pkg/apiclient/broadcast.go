package apiclient

import "sync"

// Signal is a cross-context notification kind. Modeled as a tagged value so
// further kinds can be added without widening the channel contract.
type Signal int

const (
	// SignalSignedOut tells every other live context to drop its session.
	SignalSignedOut Signal = iota
)

// Broadcaster fans signals out to all subscribed contexts of the same
// process. Delivery is fire-and-forget: a context that is not listening, or
// whose buffer is full, misses the signal. Zero subscribers is not an error.
type Broadcaster struct {
	mu             sync.Mutex
	subscribers    map[int]chan Signal
	nextSubscriber int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int]chan Signal)}
}

// Subscribe registers a listener and returns its channel plus a cancel
// function. The channel is buffered so a slow listener never blocks senders.
func (broadcaster *Broadcaster) Subscribe() (<-chan Signal, func()) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	subscriberID := broadcaster.nextSubscriber
	broadcaster.nextSubscriber++
	channel := make(chan Signal, 1)
	broadcaster.subscribers[subscriberID] = channel
	cancel := func() {
		broadcaster.mu.Lock()
		defer broadcaster.mu.Unlock()
		delete(broadcaster.subscribers, subscriberID)
	}
	return channel, cancel
}

// Broadcast delivers the signal to every subscriber without blocking.
func (broadcaster *Broadcaster) Broadcast(signal Signal) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	for _, channel := range broadcaster.subscribers {
		select {
		case channel <- signal:
		default:
		}
	}
}
