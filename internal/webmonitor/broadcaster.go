package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/pipeline"
)

// subscriberBuffer is the per-client backlog; a client that falls further
// behind skips snapshots rather than stalling the others.
const subscriberBuffer = 2

// StatusSource produces status snapshots.
type StatusSource interface {
	Status() pipeline.Status
}

// SerializedEvent is one status snapshot encoded once for every client.
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 google.protobuf.Struct, SSE-safe
}

// StatusBroadcaster pushes status snapshots to SSE and WebSocket clients,
// on a fixed interval while anyone listens and on demand via Publish.
type StatusBroadcaster struct {
	source   StatusSource
	interval time.Duration

	mu     sync.Mutex
	subs   map[int]chan *SerializedEvent
	nextID int
	last   *SerializedEvent
	done   chan struct{}
	closed bool
}

// NewStatusBroadcaster creates a broadcaster pushing every interval.
func NewStatusBroadcaster(source StatusSource, interval time.Duration) *StatusBroadcaster {
	if interval <= 0 {
		interval = DefaultConfig().StatusInterval
	}
	return &StatusBroadcaster{
		source:   source,
		interval: interval,
		subs:     make(map[int]chan *SerializedEvent),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a client. The most recent snapshot, if any, is
// queued right away. After Stop the returned channel is already closed.
func (b *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *SerializedEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return -1, ch
	}
	if b.last != nil {
		ch <- b.last
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	logger.Debug("StatusBroadcaster", "Client #%d subscribed (%d total)", id, len(b.subs))
	return id, ch
}

// Unsubscribe drops a client and closes its channel. Unknown ids are ignored.
func (b *StatusBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
	logger.Debug("StatusBroadcaster", "Client #%d unsubscribed (%d left)", id, len(b.subs))
}

// ClientCount returns the number of subscribed clients.
func (b *StatusBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Start launches the interval loop.
func (b *StatusBroadcaster) Start() {
	go b.loop()
}

// Stop ends the loop and closes every client channel, which ends their
// streaming handlers. Safe to call twice.
func (b *StatusBroadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *StatusBroadcaster) loop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			// Building a status ticks the engine; skip it with nobody listening.
			if b.ClientCount() > 0 {
				b.Publish()
			}
		}
	}
}

// Publish snapshots the source now and fans the result out.
func (b *StatusBroadcaster) Publish() {
	event, err := serializeStatus(b.source.Status())
	if err != nil {
		logger.Error("StatusBroadcaster", "Serialize error: %v", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = event
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// serializeStatus encodes a status as JSON and as a base64 protobuf Struct.
// The Struct mirrors the JSON field names so both formats decode alike.
func serializeStatus(st pipeline.Status) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("status decode: %w", err)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("status to struct: %w", err)
	}
	pbData, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
