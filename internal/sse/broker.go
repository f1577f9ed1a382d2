// Package sse streams vault and sync events to editor clients.
//
// Every frame carries an increasing id. A client may scope its stream to
// one note with ?path= and resume after a reconnect with Last-Event-ID; the
// broker replays what it still holds in its history ring.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeNoteCreated     = "note.created"
	TypeNoteUpdated     = "note.updated"
	TypeNoteDeleted     = "note.deleted"
	TypeTaskCreated     = "task.created"
	TypeTaskUpdated     = "task.updated"
	TypeTaskPulled      = "task.pulled"
	TypeTaskFailed      = "task.failed"
	TypeRegistryUpdated = "registry.updated"
)

const (
	keepAlive   = 30 * time.Second
	historySize = 256
	clientBuf   = 64
)

// Event is one message on the stream. Path scopes it to a note; events
// without a path reach every client.
type Event struct {
	Type string
	Path string
	Data any
}

// TaskEvent describes the outcome of syncing one task line.
type TaskEvent struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	BlockLink string `json:"block_link,omitempty"`
	State     string `json:"state,omitempty"`
	Error     string `json:"error,omitempty"`
}

type frame struct {
	id   uint64
	path string
	raw  []byte
}

type subscription struct {
	ch    chan []byte
	path  string
	after uint64
}

func (s *subscription) wants(f frame) bool {
	return f.id > s.after && (s.path == "" || f.path == "" || f.path == s.path)
}

// Broker fans events out to SSE clients.
//
// A single goroutine owns the client set, the history ring, the id sequence
// and the registry.updated throttle. Public methods talk to it over channels.
type Broker struct {
	registryMin time.Duration

	subscribeCh   chan *subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. registryThrottle is the minimum gap between two
// registry.updated events.
func NewBroker(registryThrottle time.Duration) *Broker {
	if registryThrottle <= 0 {
		registryThrottle = 2 * time.Second
	}

	b := &Broker{
		registryMin:   registryThrottle,
		subscribeCh:   make(chan *subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*subscription)
	history := make([]frame, 0, historySize)
	var (
		seq          uint64
		lastRegistry time.Time
	)

	deliver := func(sub *subscription, f frame) {
		if !sub.wants(f) {
			return
		}
		select {
		case sub.ch <- f.raw:
		default:
			// slow client, drop
		}
	}

	emit := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{
			id:   seq,
			path: ev.Path,
			raw:  []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload)),
		}
		if len(history) == historySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, f)
		for _, sub := range clients {
			deliver(sub, f)
		}
	}

	registryUpdated := func() {
		now := time.Now()
		if now.Sub(lastRegistry) >= b.registryMin {
			lastRegistry = now
			emit(Event{Type: TypeRegistryUpdated, Data: struct{}{}})
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub
			if sub.after > 0 {
				for _, f := range history {
					deliver(sub, f)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			emit(ev)
			switch ev.Type {
			case TypeTaskCreated, TypeNoteCreated, TypeNoteUpdated, TypeNoteDeleted:
				registryUpdated()
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. A non-empty path limits it to events of that
// note. Held events with an id above after are replayed first; zero skips
// the replay.
func (b *Broker) Subscribe(path string, after uint64) chan []byte {
	ch := make(chan []byte, clientBuf)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- &subscription{ch: ch, path: path, after: after}:
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

// Publish queues an event for every interested client.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishTask reports a task sync outcome. Failures go out as task.failed
// regardless of typ.
func (b *Broker) PublishTask(typ string, ev TaskEvent) {
	if ev.Error != "" {
		typ = TypeTaskFailed
	}
	b.Publish(Event{Type: typ, Path: ev.Path, Data: ev})
}

// PublishNoteEvent reports a watcher change. kind is created, updated or
// deleted; anything else is ignored.
func (b *Broker) PublishNoteEvent(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeNoteCreated
	case "updated":
		typ = TypeNoteUpdated
	case "deleted":
		typ = TypeNoteDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Path: path, Data: map[string]string{"path": path}})
}

// ServeHTTP is the SSE endpoint handler.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid Last-Event-ID", http.StatusBadRequest)
			return
		}
		after = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("path"), after)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
