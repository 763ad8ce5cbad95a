// Package sse streams dashboard change events to browsers with Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Change topics.
const (
	TopicKnowledge = "knowledge"
	TopicDraft     = "draft"
	TopicProfile   = "profile"
)

// Event is one SSE frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Change is a file-level change under one of the data directories.
type Change struct {
	Topic string // knowledge, draft or profile
	Kind  string // updated or deleted
	Path  string
}

// Broker fans events out to connected dashboard clients.
//
// A single loop goroutine owns the client set and the per-topic refresh
// timestamps; the public methods talk to it over channels.
type Broker struct {
	refreshMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. A topic's "<topic>.refresh" event is sent at
// most once per refreshThrottle.
func NewBroker(refreshThrottle time.Duration) *Broker {
	if refreshThrottle <= 0 {
		refreshThrottle = 2 * time.Second
	}
	b := &Broker{
		refreshMin:    refreshThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// Frame renders e in wire format.
func Frame(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	lastRefresh := make(map[string]time.Time)

	broadcast := func(e Event) {
		raw, err := Frame(e)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			broadcast(e)

		case c := <-b.changeCh:
			broadcast(Event{Type: c.Topic + "." + c.Kind, Data: map[string]string{"path": c.Path}})
			now := time.Now()
			if now.Sub(lastRefresh[c.Topic]) >= b.refreshMin {
				lastRefresh[c.Topic] = now
				broadcast(Event{Type: c.Topic + ".refresh", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends e to every client.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// PublishChange sends the change event and a throttled topic refresh.
func (b *Broker) PublishChange(c Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client disconnects (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
