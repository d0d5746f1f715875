// Package distributor fans real-time events out to dashboard subscribers,
// one stream per tenant. Each tenant channel keeps its own sequence counter,
// a bounded replay buffer for reconnecting clients, and an independent lock,
// so publishing to one municipality never contends with another.
package distributor

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"citysense-cloud/internal/observability/metrics"
)

// ErrClosed is returned when the distributor has been shut down.
var ErrClosed = errors.New("distributor: closed")

// ErrEmptyTenant is returned when the tenant id is missing.
var ErrEmptyTenant = errors.New("distributor: empty tenant id")

const (
	defaultReplayCapacity   = 200
	defaultSubscriberBuffer = 16
	defaultSweepInterval    = 5 * time.Minute
)

// Event is one unit of real-time fan-out. Events are immutable after
// publish; sequence numbers are per-tenant and never reused.
type Event struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Type        string         `json:"event_type"`
	Payload     map[string]any `json:"payload"`
	Sequence    uint64         `json:"sequence"`
	PublishedAt time.Time      `json:"published_at"`
}

// Subscription is one attached dashboard client. Events arrive on Events()
// until Unsubscribe; a subscription that cannot keep up loses events it
// would have received live and recovers the tail via replay.
type Subscription struct {
	id       uint64
	tenantID string
	events   chan Event
	closed   bool
}

// Events returns the subscriber's delivery channel. It is closed on
// unsubscribe and on distributor shutdown.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// TenantID returns the tenant the subscription is scoped to.
func (s *Subscription) TenantID() string {
	return s.tenantID
}

// channel is the per-tenant unit of mutual exclusion.
type channel struct {
	mu          sync.Mutex
	sequence    uint64
	ring        []Event
	start       int
	size        int
	subscribers map[uint64]*Subscription
	lastEventAt time.Time
}

// Distributor owns every tenant channel.
type Distributor struct {
	mu       sync.RWMutex
	channels map[string]*channel
	closed   bool

	capacity   int
	subBuffer  int
	idleTTL    time.Duration
	sweepEvery time.Duration

	nextSubID uint64
	clock     func() time.Time
	logger    *log.Logger
	done      chan struct{}
	sweepWG   sync.WaitGroup
}

// Option configures the distributor.
type Option func(*Distributor)

// WithReplayCapacity sets the per-tenant replay buffer size.
func WithReplayCapacity(capacity int) Option {
	return func(d *Distributor) {
		if capacity > 0 {
			d.capacity = capacity
		}
	}
}

// WithSubscriberBuffer sets each subscriber's outbound queue length.
func WithSubscriberBuffer(size int) Option {
	return func(d *Distributor) {
		if size > 0 {
			d.subBuffer = size
		}
	}
}

// WithIdleEviction reclaims tenant channels with no subscribers and no
// publish activity for longer than ttl. Zero ttl disables eviction.
func WithIdleEviction(ttl, sweepEvery time.Duration) Option {
	return func(d *Distributor) {
		d.idleTTL = ttl
		if sweepEvery > 0 {
			d.sweepEvery = sweepEvery
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock func() time.Time) Option {
	return func(d *Distributor) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New constructs a distributor and starts the idle janitor when eviction
// is enabled.
func New(logger *log.Logger, opts ...Option) *Distributor {
	if logger == nil {
		logger = log.Default()
	}
	d := &Distributor{
		channels:   make(map[string]*channel),
		capacity:   defaultReplayCapacity,
		subBuffer:  defaultSubscriberBuffer,
		sweepEvery: defaultSweepInterval,
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     logger,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.idleTTL > 0 {
		d.sweepWG.Add(1)
		go d.sweepLoop()
	}
	return d
}

// Publish assigns the next sequence number for the tenant, appends the
// event to the replay buffer and delivers it to every attached subscriber.
// Delivery is non-blocking: a full subscriber queue drops the event for
// that subscriber only.
func (d *Distributor) Publish(tenantID, eventType string, payload map[string]any) (Event, error) {
	if tenantID == "" {
		return Event{}, ErrEmptyTenant
	}
	ch, err := d.channel(tenantID, true)
	if err != nil {
		return Event{}, err
	}

	ch.mu.Lock()
	ch.sequence++
	event := Event{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Type:        eventType,
		Payload:     payload,
		Sequence:    ch.sequence,
		PublishedAt: d.clock().UTC(),
	}
	ch.append(event)
	ch.lastEventAt = event.PublishedAt
	dropped := 0
	for _, sub := range ch.subscribers {
		select {
		case sub.events <- event:
		default:
			dropped++
		}
	}
	ch.mu.Unlock()

	metrics.IncEventPublished(eventType)
	for i := 0; i < dropped; i++ {
		metrics.IncEventDropped()
	}
	return event, nil
}

// Subscribe attaches a new subscriber to the tenant's stream. The channel
// and its replay buffer are created on first use.
func (d *Distributor) Subscribe(tenantID string) (*Subscription, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenant
	}
	ch, err := d.channel(tenantID, true)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.nextSubID++
	id := d.nextSubID
	d.mu.Unlock()

	sub := &Subscription{
		id:       id,
		tenantID: tenantID,
		events:   make(chan Event, d.subBuffer),
	}
	ch.mu.Lock()
	ch.subscribers[id] = sub
	ch.mu.Unlock()
	metrics.AddSubscribers(1)
	return sub, nil
}

// Unsubscribe detaches a subscriber and closes its channel. Idempotent;
// the replay buffer is unaffected.
func (d *Distributor) Unsubscribe(sub *Subscription) {
	if d == nil || sub == nil {
		return
	}
	ch, err := d.channel(sub.tenantID, false)
	if err != nil || ch == nil {
		return
	}
	ch.mu.Lock()
	_, attached := ch.subscribers[sub.id]
	if attached {
		delete(ch.subscribers, sub.id)
	}
	// Send and close are both serialized by ch.mu, so no delivery can race
	// with the close.
	if !sub.closed {
		sub.closed = true
		close(sub.events)
	}
	ch.mu.Unlock()
	if attached {
		metrics.AddSubscribers(-1)
	}
}

// Events returns up to limit most-recent events for the tenant, newest
// first, drawn purely from the in-memory replay buffer.
func (d *Distributor) Events(tenantID string, limit int) []Event {
	metrics.IncReplayRequest()
	ch, err := d.channel(tenantID, false)
	if err != nil || ch == nil {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := ch.size
	if limit > 0 && limit < n {
		n = limit
	}
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		// Walk backwards from the newest entry.
		idx := (ch.start + ch.size - 1 - i + len(ch.ring)) % len(ch.ring)
		events = append(events, ch.ring[idx])
	}
	return events
}

// Close shuts the distributor down, detaching every subscriber.
func (d *Distributor) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	channels := make([]*channel, 0, len(d.channels))
	for _, ch := range d.channels {
		channels = append(channels, ch)
	}
	d.mu.Unlock()

	for _, ch := range channels {
		ch.mu.Lock()
		for id, sub := range ch.subscribers {
			delete(ch.subscribers, id)
			if !sub.closed {
				sub.closed = true
				close(sub.events)
			}
			metrics.AddSubscribers(-1)
		}
		ch.mu.Unlock()
	}
	d.sweepWG.Wait()
}

// channel returns the tenant channel, creating it when create is set.
func (d *Distributor) channel(tenantID string, create bool) (*channel, error) {
	d.mu.RLock()
	ch := d.channels[tenantID]
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ch != nil || !create {
		return ch, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if ch = d.channels[tenantID]; ch != nil {
		return ch, nil
	}
	ch = &channel{
		ring:        make([]Event, d.capacity),
		subscribers: make(map[uint64]*Subscription),
		lastEventAt: d.clock().UTC(),
	}
	d.channels[tenantID] = ch
	metrics.SetTenantChannels(len(d.channels))
	return ch, nil
}

// append adds an event to the ring, evicting the oldest entry at capacity.
func (ch *channel) append(event Event) {
	if ch.size < len(ch.ring) {
		ch.ring[(ch.start+ch.size)%len(ch.ring)] = event
		ch.size++
		return
	}
	ch.ring[ch.start] = event
	ch.start = (ch.start + 1) % len(ch.ring)
}

func (d *Distributor) sweepLoop() {
	defer d.sweepWG.Done()
	ticker := time.NewTicker(d.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.sweepIdle()
		case <-d.done:
			return
		}
	}
}

// sweepIdle drops tenant channels that have no subscribers and have been
// quiet past the idle window. A late subscriber simply recreates the
// channel with an empty replay buffer.
func (d *Distributor) sweepIdle() {
	cutoff := d.clock().Add(-d.idleTTL)
	d.mu.Lock()
	defer d.mu.Unlock()
	for tenantID, ch := range d.channels {
		ch.mu.Lock()
		idle := len(ch.subscribers) == 0 && ch.lastEventAt.Before(cutoff)
		ch.mu.Unlock()
		if idle {
			delete(d.channels, tenantID)
			d.logger.Printf("distributor: evicted idle tenant channel: tenant=%s", tenantID)
		}
	}
	metrics.SetTenantChannels(len(d.channels))
}
