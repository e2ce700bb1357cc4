// Package notifier fans resume, ranking and verification events out to
// per-job and per-resume channels. Publishing never waits on subscribers.
package notifier

import (
	"context"
	"sync"
	"sync/atomic"

	"go-screening-backend/internal/domain"

	"go.uber.org/zap"
)

// Relay forwards sequenced events to every instance. The hub delivers what
// the relay hands back through Deliver.
type Relay interface {
	Forward(ctx context.Context, ev domain.Event) error
}

type Hub struct {
	seq    Sequencer
	buffer int
	log    *zap.Logger

	mu       sync.RWMutex
	channels map[string]*channel
	nextID   atomic.Uint64

	relay Relay
}

type channel struct {
	// publish serializes sequence assignment and local hand-off so the
	// delivery order of a channel matches its sequence order.
	publish sync.Mutex
	subs    map[uint64]*Subscription
	// removed is set once the channel left the hub map; publishers holding
	// it must look the name up again.
	removed bool
}

func NewHub(seq Sequencer, buffer int, log *zap.Logger) *Hub {
	if seq == nil {
		seq = NewMemorySequencer()
	}
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{seq: seq, buffer: buffer, log: log, channels: make(map[string]*channel)}
}

// UseRelay routes deliveries through r so that subscribers on other instances
// see events published here.
func (h *Hub) UseRelay(r Relay) {
	h.relay = r
}

// Subscribe opens a long-lived handle on one channel. Callers must Cancel it.
func (h *Hub) Subscribe(name string) *Subscription {
	sub := &Subscription{
		id:      h.nextID.Add(1),
		channel: name,
		events:  make(chan domain.Event, h.buffer),
		hub:     h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[name]
	if !ok {
		ch = &channel{subs: make(map[uint64]*Subscription)}
		h.channels[name] = ch
	}
	ch.publish.Lock()
	ch.subs[sub.id] = sub
	ch.publish.Unlock()
	return sub
}

// Publish implements domain.Publisher. Each channel gets its own copy of the
// event with its own sequence number.
func (h *Hub) Publish(ctx context.Context, ev domain.Event, channels ...string) {
	for _, name := range channels {
		if _, err := h.PublishTo(ctx, name, ev); err != nil {
			h.log.Warn("publish failed",
				zap.String("channel", name),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

func (h *Hub) PublishTo(ctx context.Context, name string, ev domain.Event) (domain.Event, error) {
	ch := h.acquire(name)
	ev, err := h.publishLocked(ctx, ch, name, ev)
	ch.publish.Unlock()
	h.reap(name, ch)
	return ev, err
}

// publishLocked assigns the sequence number and hands the event off while the
// channel's publish lock is held, so a Subscribe racing with it either sees
// the event or joins after it was numbered.
func (h *Hub) publishLocked(ctx context.Context, ch *channel, name string, ev domain.Event) (domain.Event, error) {
	seq, err := h.seq.Next(ctx, name)
	if err != nil {
		return ev, err
	}
	ev.Channel = name
	ev.Seq = seq

	if h.relay != nil {
		err := h.relay.Forward(ctx, ev)
		if err == nil {
			return ev, nil
		}
		h.log.Warn("relay forward failed, delivering locally", zap.Error(err))
	}
	h.deliverLocked(ch, ev)
	return ev, nil
}

// acquire returns the live channel for name with its publish lock held,
// creating it if needed.
func (h *Hub) acquire(name string) *channel {
	for {
		h.mu.Lock()
		ch, ok := h.channels[name]
		if !ok {
			ch = &channel{subs: make(map[uint64]*Subscription)}
			h.channels[name] = ch
		}
		h.mu.Unlock()

		ch.publish.Lock()
		if !ch.removed {
			return ch
		}
		ch.publish.Unlock()
	}
}

// reap forgets ch if it is still registered under name and nobody listens.
func (h *Hub) reap(name string, ch *channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[name] != ch {
		return
	}
	ch.publish.Lock()
	if len(ch.subs) == 0 {
		ch.removed = true
		delete(h.channels, name)
	}
	ch.publish.Unlock()
}

// Deliver hands a relayed event to local subscribers.
func (h *Hub) Deliver(ev domain.Event) {
	ch := h.lookup(ev.Channel)
	if ch == nil {
		return
	}
	ch.publish.Lock()
	defer ch.publish.Unlock()
	h.deliverLocked(ch, ev)
}

func (h *Hub) Current(ctx context.Context, name string) (uint64, error) {
	return h.seq.Current(ctx, name)
}

// Subscribers counts open subscriptions on a channel.
func (h *Hub) Subscribers(name string) int {
	ch := h.lookup(name)
	if ch == nil {
		return 0
	}
	ch.publish.Lock()
	defer ch.publish.Unlock()
	return len(ch.subs)
}

func (h *Hub) lookup(name string) *channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[name]
}

func (h *Hub) deliverLocked(ch *channel, ev domain.Event) {
	for _, sub := range ch.subs {
		sub.offer(ev)
	}
}

// unsubscribe drops sub and forgets the channel once nobody listens.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[sub.channel]
	if !ok {
		return
	}
	ch.publish.Lock()
	delete(ch.subs, sub.id)
	if len(ch.subs) == 0 {
		ch.removed = true
		delete(h.channels, sub.channel)
	}
	ch.publish.Unlock()
}

// Subscription is one observer's backlog on one channel.
type Subscription struct {
	id      uint64
	channel string
	events  chan domain.Event
	hub     *Hub

	lastSeq uint64
	lagged  atomic.Bool
	closed  atomic.Bool
	once    sync.Once
}

func (s *Subscription) Channel() string { return s.channel }

// Events delivers in increasing sequence order. It is closed by Cancel.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// TakeLagged reports and clears the lag flag. A lagged subscriber missed
// events and should fetch a snapshot.
func (s *Subscription) TakeLagged() bool {
	return s.lagged.Swap(false)
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		s.closed.Store(true)
		close(s.events)
	})
}

// offer runs under the channel's publish lock.
func (s *Subscription) offer(ev domain.Event) {
	if s.closed.Load() {
		return
	}
	if ev.Seq <= s.lastSeq {
		// late relay copy; ordering wins over completeness
		s.lagged.Store(true)
		return
	}
	if s.lastSeq != 0 && ev.Seq > s.lastSeq+1 {
		s.lagged.Store(true)
	}
	select {
	case s.events <- ev:
		s.lastSeq = ev.Seq
	default:
		s.lagged.Store(true)
	}
}
