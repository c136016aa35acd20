// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"sync"
	"time"

	"code.hybscloud.com/iox"
)

// EventID is a bounded, notifier-chosen integer attached to a notification.
// The service's configured MaxEventID bounds valid values; exceeding it is
// a request-time validation error, never a transport fault.
type EventID uint32

// eventQueueCapacity bounds each notifier→listener queue. Notifications to
// a full queue displace the oldest undelivered one, so a bursty notifier
// cannot wedge a slow listener; event delivery is a signal, not a payload.
const eventQueueCapacity = 256

// eventPair is the directed event queue of one notifier→listener connection.
type eventPair struct {
	notifierID uint32
	listenerID uint32
	q          boundedQueue[EventID]
}

type notifierState struct {
	id      uint32
	targets []*eventPair // copy-on-write, guarded by plane.mu
}

type listenerState struct {
	id     uint32
	queues []*eventPair // copy-on-write, guarded by plane.mu
	sysQ   boundedQueue[EventID]
}

// eventPlane is the pattern plane of one event channel.
type eventPlane struct {
	cfg       EventConfig
	mu        sync.Mutex
	notifiers map[uint32]*notifierState
	listeners map[uint32]*listenerState
}

func newEventPlane(cfg EventConfig) *eventPlane {
	return &eventPlane{
		cfg:       cfg,
		notifiers: make(map[uint32]*notifierState),
		listeners: make(map[uint32]*listenerState),
	}
}

// fireLifecycle delivers a reserved lifecycle id to every listener.
// Delivery is at-least-once under destruction races; consumers must treat
// duplicates as idempotent.
func (pl *eventPlane) fireLifecycle(id *EventID) {
	if id == nil {
		return
	}
	for _, ls := range pl.listeners {
		ls.sysQ.push(*id)
	}
}

// EventService is a named event channel.
type EventService struct {
	node   *Node
	ch     *channel
	plane  *eventPlane
	closed bool
}

// OpenEvent creates or opens an event service. Zero config fields take the
// [DefaultEventConfig] values.
func OpenEvent(n *Node, name string, cfg EventConfig) (*EventService, error) {
	ch, err := openService(n, name, PatternEvent, cfg, nil)
	if err != nil {
		return nil, err
	}
	ch.mu.Lock()
	if ch.plane == nil {
		ch.plane = newEventPlane(ch.cfg.(EventConfig))
	}
	plane, ok := ch.plane.(*eventPlane)
	ch.mu.Unlock()
	if !ok {
		ch.release(n.id)
		return nil, failf(ServiceCreationFailed, "service %q plane type mismatch", name)
	}
	return &EventService{node: n, ch: ch, plane: plane}, nil
}

// Name returns the service name.
func (s *EventService) Name() string { return s.ch.name }

// Config returns the recorded static configuration.
func (s *EventService) Config() EventConfig { return s.plane.cfg }

// Close releases the service handle.
func (s *EventService) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ch.release(s.node.id)
}

// Notifier is the signaling endpoint of an event service.
// Handles are not safe for concurrent use.
type Notifier struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *eventPlane
	st     *notifierState
	closed bool
}

// Notifier creates a signaling endpoint; fails with NotifierCreationFailed
// when the configured notifier limit is reached. When the service reserves
// a notifier-created lifecycle id, listeners are notified.
func (s *EventService) Notifier() (*Notifier, error) {
	if s.closed {
		panic("memq: notifier on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.notifiers)) >= pl.cfg.MaxNotifiers {
		return nil, failf(NotifierCreationFailed, "notifier limit %d reached", pl.cfg.MaxNotifiers)
	}
	id := endpointSerial.Add(1)
	ns := &notifierState{id: id}
	for _, ls := range pl.listeners {
		ep := &eventPair{notifierID: id, listenerID: ls.id,
			q: newBoundedQueue[EventID](eventQueueCapacity, true)}
		ns.targets = append(ns.targets, ep)
		ls.queues = appendCow(ls.queues, ep)
	}
	pl.notifiers[id] = ns
	pl.fireLifecycle(pl.cfg.NotifierCreatedEvent)
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("notifier", id).Msg("notifier created")
	return &Notifier{id: id, node: s.node.id, ch: s.ch, plane: pl, st: ns}, nil
}

// ID returns the notifier's process-unique endpoint serial.
func (n *Notifier) ID() uint32 { return n.id }

// Notify signals all attached listeners with id. Fails with NotifyFailed —
// carrying the offending id — when id exceeds the service's configured
// maximum. A full listener queue displaces that listener's oldest
// undelivered notification instead of failing.
func (n *Notifier) Notify(id EventID) error {
	if n.closed {
		panic("memq: notify on closed notifier")
	}
	pl := n.plane
	if id > pl.cfg.MaxEventID {
		return &Failure{
			Kind:    NotifyFailed,
			Detail:  "event id exceeds configured maximum",
			EventID: id,
		}
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for _, ep := range n.st.targets {
		ep.q.push(id)
	}
	return nil
}

// Close removes the notifier from the service roster. When the service
// reserves a notifier-dropped lifecycle id, listeners are notified.
func (n *Notifier) Close() {
	if n.closed {
		return
	}
	n.closed = true
	pl := n.plane
	pl.mu.Lock()
	delete(pl.notifiers, n.id)
	for _, ls := range pl.listeners {
		ls.queues = removeCow(ls.queues, func(ep *eventPair) bool { return ep.notifierID == n.id })
	}
	pl.fireLifecycle(pl.cfg.NotifierDroppedEvent)
	pl.mu.Unlock()
	n.ch.release(n.node)
}

// Listener is the receiving endpoint of an event service.
// Handles are not safe for concurrent use.
type Listener struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *eventPlane
	st     *listenerState
	rr     int
	closed bool
}

// Listener creates a receiving endpoint; fails with ListenerCreationFailed
// when the configured listener limit is reached.
func (s *EventService) Listener() (*Listener, error) {
	if s.closed {
		panic("memq: listener on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.listeners)) >= pl.cfg.MaxListeners {
		return nil, failf(ListenerCreationFailed, "listener limit %d reached", pl.cfg.MaxListeners)
	}
	id := endpointSerial.Add(1)
	ls := &listenerState{id: id, sysQ: newBoundedQueue[EventID](eventQueueCapacity, true)}
	for _, ns := range pl.notifiers {
		ep := &eventPair{notifierID: ns.id, listenerID: id,
			q: newBoundedQueue[EventID](eventQueueCapacity, true)}
		ns.targets = append(ns.targets, ep)
		ls.queues = appendCow(ls.queues, ep)
	}
	pl.listeners[id] = ls
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("listener", id).Msg("listener created")
	return &Listener{id: id, node: s.node.id, ch: s.ch, plane: pl, st: ls}, nil
}

// ID returns the listener's process-unique endpoint serial.
func (l *Listener) ID() uint32 { return l.id }

func (l *Listener) snapshot() ([]*eventPair, boundedQueue[EventID]) {
	l.plane.mu.Lock()
	qs, sys := l.st.queues, l.st.sysQ
	l.plane.mu.Unlock()
	return qs, sys
}

// TryWait returns the next pending event id without blocking. No pending
// event is (0, false, nil), never an error. Reserved lifecycle ids arrive
// like any other EventID and may duplicate under destruction races.
func (l *Listener) TryWait() (EventID, bool, error) {
	if l.closed {
		panic("memq: wait on closed listener")
	}
	qs, sys := l.snapshot()
	if id, err := sys.pop(); err == nil {
		return id, true, nil
	}
	n := len(qs)
	for i := 0; i < n; i++ {
		ep := qs[(l.rr+i)%n]
		id, err := ep.q.pop()
		if err == nil {
			l.rr = (l.rr + i + 1) % n
			return id, true, nil
		}
	}
	return 0, false, nil
}

// TimedWait blocks up to d for one event, waking early when one arrives.
// Expiry is (0, false, nil), never an error. Waiting is adaptive-backoff
// polling, the engine's uniform blocking discipline.
func (l *Listener) TimedWait(d time.Duration) (EventID, bool, error) {
	deadline := time.Now().Add(d)
	var bo iox.Backoff
	for {
		id, ok, err := l.TryWait()
		if ok || err != nil {
			return id, ok, err
		}
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
		bo.Wait()
	}
}

// BlockingWait waits indefinitely for exactly one event.
func (l *Listener) BlockingWait() (EventID, error) {
	var bo iox.Backoff
	for {
		id, ok, err := l.TryWait()
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
		bo.Wait()
	}
}

// Pending reports whether TryWait would yield an event. This is the
// readiness predicate the WaitSet polls.
func (l *Listener) Pending() bool {
	if l.closed {
		return false
	}
	qs, sys := l.snapshot()
	if sys.pending() {
		return true
	}
	for _, ep := range qs {
		if ep.q.pending() {
			return true
		}
	}
	return false
}

// Close removes the listener from the service roster.
func (l *Listener) Close() {
	if l.closed {
		return
	}
	l.closed = true
	pl := l.plane
	pl.mu.Lock()
	delete(pl.listeners, l.id)
	for _, ns := range pl.notifiers {
		ns.targets = removeCow(ns.targets, func(ep *eventPair) bool { return ep.listenerID == l.id })
	}
	pl.mu.Unlock()
	l.ch.release(l.node)
}
