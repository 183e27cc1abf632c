// Package realtime keeps the per-ticket progress timers and fans frames out to the
// live subscribers of a (user, station) pair.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/metrics"
	"chargeway/backend/services/charging-service/internal/models"
)

// DefaultTickInterval is how often a running ticket recomputes its progress.
const DefaultTickInterval = 5 * time.Second

// FrameType tags outbound frames.
type FrameType string

const (
	FrameInitial   FrameType = "initial"
	FrameProgress  FrameType = "progress"
	FrameStarted   FrameType = "started"
	FrameCompleted FrameType = "completed"
	FrameCancelled FrameType = "cancelled"
)

// Frame is the JSON message pushed to subscribers. Ticket is always present and is null
// once the session has ended.
type Frame struct {
	Type            FrameType `json:"type"`
	Ticket          any       `json:"ticket"`
	CompletedTicket any       `json:"completedTicket,omitempty"`
	CancelledTicket any       `json:"cancelledTicket,omitempty"`
}

// SessionKey groups subscribers interested in one user's session at one station.
type SessionKey struct {
	UserID    models.ID
	StationID models.ID
}

func (k SessionKey) String() string {
	return k.UserID.String() + ":" + k.StationID.String()
}

// Subscriber receives encoded frames. Send must not block; an error prunes the subscriber.
type Subscriber interface {
	Send(msg []byte) error
	Close()
}

// TickFunc runs one progress step. Returning true stops the timer.
type TickFunc func(ctx context.Context) (done bool)

type timer struct {
	cancel context.CancelFunc
}

// Hub owns the timer and subscriber registries.
type Hub struct {
	mu          sync.Mutex
	timers      map[models.ID]*timer
	subscribers map[SessionKey]map[Subscriber]struct{}
	closed      bool

	wg       sync.WaitGroup
	interval time.Duration
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(interval time.Duration, rec *metrics.Recorder, logger *zap.Logger) *Hub {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		timers:      make(map[models.ID]*timer),
		subscribers: make(map[SessionKey]map[Subscriber]struct{}),
		interval:    interval,
		metrics:     rec,
		logger:      logger.Named("hub"),
	}
}

// EnsureTimer starts a timer for the ticket unless one is already running. The first
// tick runs immediately, then every interval, until fn reports done, ClearTimer is
// called, or the hub shuts down. It reports whether a new timer was started.
func (h *Hub) EnsureTimer(ticketID models.ID, fn TickFunc) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	if _, ok := h.timers[ticketID]; ok {
		h.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{cancel: cancel}
	h.timers[ticketID] = t
	h.wg.Add(1)
	count := len(h.timers)
	h.mu.Unlock()

	h.metrics.SetTimers(count)
	h.logger.Debug("timer started", zap.String("ticket_id", ticketID.String()))
	go h.run(ctx, ticketID, t, fn)
	return true
}

func (h *Hub) run(ctx context.Context, ticketID models.ID, t *timer, fn TickFunc) {
	defer h.wg.Done()
	defer h.remove(ticketID, t)

	if h.tick(ctx, ticketID, fn) {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.tick(ctx, ticketID, fn) {
				return
			}
		}
	}
}

func (h *Hub) tick(ctx context.Context, ticketID models.ID, fn TickFunc) (done bool) {
	if ctx.Err() != nil {
		return true
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("timer tick panicked", zap.String("ticket_id", ticketID.String()), zap.Any("panic", rec))
			done = true
		}
	}()
	return fn(ctx)
}

func (h *Hub) remove(ticketID models.ID, t *timer) {
	t.cancel()
	h.mu.Lock()
	if current, ok := h.timers[ticketID]; ok && current == t {
		delete(h.timers, ticketID)
	}
	count := len(h.timers)
	h.mu.Unlock()
	h.metrics.SetTimers(count)
}

// ClearTimer stops the ticket's timer if any. It does not wait for an in-flight tick,
// so it is safe to call from inside one.
func (h *Hub) ClearTimer(ticketID models.ID) {
	h.mu.Lock()
	t, ok := h.timers[ticketID]
	if ok {
		delete(h.timers, ticketID)
	}
	count := len(h.timers)
	h.mu.Unlock()
	if ok {
		t.cancel()
		h.metrics.SetTimers(count)
		h.logger.Debug("timer cleared", zap.String("ticket_id", ticketID.String()))
	}
}

// HasTimer reports whether a timer is registered for the ticket.
func (h *Hub) HasTimer(ticketID models.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.timers[ticketID]
	return ok
}

// ActiveTimers returns the number of registered timers.
func (h *Hub) ActiveTimers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// Subscribe registers sub for the key. It returns false once the hub is shut down.
func (h *Hub) Subscribe(key SessionKey, sub Subscriber) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	set, ok := h.subscribers[key]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.subscribers[key] = set
	}
	set[sub] = struct{}{}
	count := h.subscriberCountLocked()
	h.mu.Unlock()
	h.metrics.SetSubscribers(count)
	return true
}

// Unsubscribe removes sub. Unknown subscribers are ignored.
func (h *Hub) Unsubscribe(key SessionKey, sub Subscriber) {
	h.mu.Lock()
	h.removeSubscriberLocked(key, sub)
	count := h.subscriberCountLocked()
	h.mu.Unlock()
	h.metrics.SetSubscribers(count)
}

// Subscribers returns the number of subscribers registered for key.
func (h *Hub) Subscribers(key SessionKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[key])
}

// Broadcast encodes frame once and delivers it to every subscriber of key. Subscribers
// that fail to accept it are removed and closed.
func (h *Hub) Broadcast(key SessionKey, frame Frame) {
	msg, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode frame", zap.String("type", string(frame.Type)), zap.Error(err))
		return
	}

	var failed []Subscriber
	delivered := 0
	h.mu.Lock()
	for sub := range h.subscribers[key] {
		if err := sub.Send(msg); err != nil {
			failed = append(failed, sub)
			continue
		}
		delivered++
	}
	for _, sub := range failed {
		h.removeSubscriberLocked(key, sub)
	}
	count := h.subscriberCountLocked()
	h.mu.Unlock()

	for _, sub := range failed {
		sub.Close()
	}
	if len(failed) > 0 {
		h.metrics.SetSubscribers(count)
		h.logger.Debug("pruned subscribers", zap.String("key", key.String()), zap.Int("count", len(failed)))
	}
	for i := 0; i < delivered; i++ {
		h.metrics.FrameSent(string(frame.Type))
	}
}

// Send delivers one frame to a single subscriber.
func (h *Hub) Send(sub Subscriber, frame Frame) error {
	msg, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := sub.Send(msg); err != nil {
		return err
	}
	h.metrics.FrameSent(string(frame.Type))
	return nil
}

// Shutdown stops every timer, closes every subscriber and waits for running ticks to
// return or ctx to end. The hub accepts no new timers or subscribers afterwards.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for id, t := range h.timers {
		t.cancel()
		delete(h.timers, id)
	}
	var subs []Subscriber
	for key, set := range h.subscribers {
		for sub := range set {
			subs = append(subs, sub)
		}
		delete(h.subscribers, key)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	h.metrics.SetTimers(0)
	h.metrics.SetSubscribers(0)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) removeSubscriberLocked(key SessionKey, sub Subscriber) {
	set, ok := h.subscribers[key]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subscribers, key)
	}
}

func (h *Hub) subscriberCountLocked() int {
	n := 0
	for _, set := range h.subscribers {
		n += len(set)
	}
	return n
}
