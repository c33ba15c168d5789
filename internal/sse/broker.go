// Package sse pushes change notifications to connected reviewers over
// Server-Sent Events: saved records, newly ingested documents and a
// rate-limited hint to refresh statistics.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeAnnotationSaved   = "annotation.saved"
	TypeAnnotationDeleted = "annotation.deleted"
	TypeDocumentsIngested = "documents.ingested"
	TypeStatsUpdated      = "stats.updated"
)

const (
	clientBuffer = 64
	keepAlive    = 25 * time.Second
	retryMillis  = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type delivery struct {
	event Event
	// change marks events that should be followed by stats.updated.
	change bool
}

// Broker fans events out to subscribed clients.
//
// One goroutine owns the subscriber set, the event sequence and the stats
// schedule; every exported method talks to it over channels. stats.updated
// is sent at most once per interval and always after the last change of a
// burst.
type Broker struct {
	interval time.Duration

	join  chan chan []byte
	leave chan chan []byte
	in    chan delivery
	count chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker that emits stats.updated at most once per
// statsInterval (2s when zero or negative).
func NewBroker(statsInterval time.Duration) *Broker {
	if statsInterval <= 0 {
		statsInterval = 2 * time.Second
	}
	b := &Broker{
		interval: statsInterval,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		in:       make(chan delivery, 256),
		count:    make(chan chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastStats time.Time
		pending   bool
		timer     *time.Timer
		fire      <-chan time.Time
	)

	send := func(ev Event) {
		seq++
		frame, err := encode(seq, ev)
		if err != nil {
			return
		}
		for ch := range subs {
			select {
			case ch <- frame:
			default:
				// Slow client; drop rather than stall everyone else.
			}
		}
	}
	sendStats := func(now time.Time) {
		lastStats = now
		pending = false
		send(Event{Type: TypeStatsUpdated, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.quit:
			if timer != nil {
				timer.Stop()
			}
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.join:
			subs[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case d := <-b.in:
			send(d.event)
			if !d.change {
				continue
			}
			now := time.Now()
			wait := b.interval - now.Sub(lastStats)
			switch {
			case wait <= 0:
				sendStats(now)
			case !pending:
				pending = true
				timer = time.NewTimer(wait)
				fire = timer.C
			}

		case now := <-fire:
			fire = nil
			if pending {
				sendStats(now)
			}

		case resp := <-b.count:
			resp <- len(subs)
		}
	}
}

// encode renders one SSE frame.
func encode(id uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(id, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(ev.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Close stops the broker and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.done:
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
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts ev as is.
func (b *Broker) Publish(ev Event) {
	b.deliver(delivery{event: ev})
}

// PublishAnnotationEvent announces a record change. kind is "saved" or
// "deleted"; an empty key means several records changed at once.
func (b *Broker) PublishAnnotationEvent(kind, key string) {
	typ := TypeAnnotationSaved
	if kind == "deleted" {
		typ = TypeAnnotationDeleted
	}
	b.deliver(delivery{event: Event{Type: typ, Data: map[string]string{"key": key}}, change: true})
}

// PublishIngested announces newly stored documents.
func (b *Broker) PublishIngested(keys []string) {
	b.deliver(delivery{event: Event{Type: TypeDocumentsIngested, Data: map[string]any{"keys": keys}}, change: true})
}

func (b *Broker) deliver(d delivery) {
	if b.closed.Load() {
		return
	}
	select {
	case b.in <- d:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client (GET /api/events) until the
// request ends or the broker closes. Idle streams get a comment line every
// keepAlive so proxies keep them open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.Itoa(retryMillis) + "\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
