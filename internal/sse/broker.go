// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/council/internal/models"
	"github.com/starford/council/internal/notify"
)

// Event types.
const (
	TypeNotification   = "notification"
	TypeOpenDetail     = "intent.open_detail"
	TypeOpenDocument   = "intent.open_document"
	TypeMeetingPrefix  = "meeting."
	TypeDocumentPrefix = "document."
	TypeRefreshed      = "meeting.refreshed"
	TypeCalendar       = "calendar.updated"
)

// Event represents an SSE event to broadcast. A non-empty Client limits
// delivery to the subscribers of that view client.
type Event struct {
	Type   string `json:"type"`
	Data   any    `json:"data"`
	Client string `json:"-"`
}

type subscribeReq struct {
	ch     chan []byte
	client string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + calendar throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	calendarMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given calendar.updated throttle interval.
func NewBroker(calendarThrottle time.Duration) *Broker {
	if calendarThrottle <= 0 {
		calendarThrottle = 2 * time.Second
	}

	b := &Broker{
		calendarMin:   calendarThrottle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastCalendar time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, client := range clients {
			if event.Client != "" && event.Client != client {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
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

		case req := <-b.subscribeCh:
			clients[req.ch] = req.client

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case event := <-b.changeCh:
			broadcast(event)

			now := time.Now()
			if now.Sub(lastCalendar) >= b.calendarMin {
				lastCalendar = now
				broadcast(Event{Type: TypeCalendar, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new subscriber for the given view client ("" receives only
// broadcast events) and returns its channel.
func (b *Broker) Subscribe(client string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, client: client}:
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

// Publish sends an event to its subscribers.
func (b *Broker) Publish(event Event) {
	b.send(b.publishCh, event)
}

// PublishMeetingEvent publishes meeting.<kind> and a throttled calendar.updated event.
func (b *Broker) PublishMeetingEvent(kind, id string) {
	b.send(b.changeCh, Event{Type: TypeMeetingPrefix + kind, Data: map[string]string{"meeting_id": id}})
}

// PublishDocumentEvent publishes document.<kind> and a throttled calendar.updated event.
func (b *Broker) PublishDocumentEvent(kind, id, url string) {
	data := map[string]string{"meeting_id": id}
	if url != "" {
		data["url"] = url
	}
	b.send(b.changeCh, Event{Type: TypeDocumentPrefix + kind, Data: data})
}

func (b *Broker) send(ch chan Event, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case ch <- event:
	case <-b.stopped:
	}
}

// Notify delivers a notification to the client named in n, or to everyone.
func (b *Broker) Notify(_ context.Context, n notify.Notification) {
	b.Publish(Event{Type: TypeNotification, Data: n, Client: n.Client})
}

// OpenDetail asks the client's page to show the meeting form.
func (b *Broker) OpenDetail(_ context.Context, client string, m *models.Meeting) {
	b.Publish(Event{Type: TypeOpenDetail, Data: intent{MeetingID: m.ID, Client: client}, Client: client})
}

// OpenDocument asks the client's page to open the agenda in a new tab.
func (b *Broker) OpenDocument(_ context.Context, client string, m *models.Meeting) {
	b.Publish(Event{Type: TypeOpenDocument, Data: intent{MeetingID: m.ID, URL: m.DocumentURL, Client: client}, Client: client})
}

// Refreshed pushes a meeting whose agenda just became available.
func (b *Broker) Refreshed(_ context.Context, m *models.Meeting) {
	b.Publish(Event{Type: TypeRefreshed, Data: m})
}

type intent struct {
	MeetingID string `json:"meeting_id"`
	URL       string `json:"url,omitempty"`
	Client    string `json:"client"`
}

// ServeHTTP is the SSE endpoint handler (GET /api/events?client=).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("client"))
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
