// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// endpointSerial numbers endpoints process-uniquely across all patterns.
var endpointSerial atomix.Uint32

// appendCow and removeCow maintain copy-on-write rosters: readers snapshot
// the slice header under the plane lock and keep iterating the old backing
// array while the roster changes.
func appendCow[E any](s []E, e E) []E {
	out := make([]E, len(s)+1)
	copy(out, s)
	out[len(s)] = e
	return out
}

func removeCow[E any](s []E, drop func(E) bool) []E {
	out := make([]E, 0, len(s))
	for _, e := range s {
		if !drop(e) {
			out = append(out, e)
		}
	}
	return out
}

// pairQueue is the directed queue of one publisher→subscriber connection.
// Within one pair, samples are observed in publish order.
type pairQueue[T any] struct {
	pubID uint32
	subID uint32
	q     boundedQueue[*slot[T]]
}

type pubState[T any] struct {
	id      uint32
	pool    *slotPool[T]
	targets []*pairQueue[T] // copy-on-write, guarded by plane.mu
}

type subState[T any] struct {
	id     uint32
	queues []*pairQueue[T] // copy-on-write, guarded by plane.mu
	histQ  boundedQueue[*slot[T]]
}

// pubSubPlane is the pattern plane of one publish-subscribe channel:
// endpoint rosters, pair queues, and the shared history ring.
type pubSubPlane[T any] struct {
	cfg  PubSubConfig
	mu   sync.Mutex
	pubs map[uint32]*pubState[T]
	subs map[uint32]*subState[T]
	hist []*slot[T] // each entry holds one slot reference
}

func newPubSubPlane[T any](cfg PubSubConfig) *pubSubPlane[T] {
	return &pubSubPlane[T]{
		cfg:  cfg,
		pubs: make(map[uint32]*pubState[T]),
		subs: make(map[uint32]*subState[T]),
	}
}

// PubSubService is a named publish-subscribe channel for payload type T.
type PubSubService[T any] struct {
	node   *Node
	ch     *channel
	plane  *pubSubPlane[T]
	closed bool
}

// OpenPublishSubscribe creates or opens a publish-subscribe service. Zero
// config fields take the [DefaultPubSubConfig] values; opening an existing
// service requires the same payload type and limits no larger than the
// recorded ones.
func OpenPublishSubscribe[T any](n *Node, name string, cfg PubSubConfig) (*PubSubService[T], error) {
	ch, err := openService(n, name, PatternPublishSubscribe, cfg, typeOf[T]())
	if err != nil {
		return nil, err
	}
	ch.mu.Lock()
	if ch.plane == nil {
		ch.plane = newPubSubPlane[T](ch.cfg.(PubSubConfig))
	}
	plane, ok := ch.plane.(*pubSubPlane[T])
	ch.mu.Unlock()
	if !ok {
		ch.release(n.id)
		return nil, failf(ServiceCreationFailed, "service %q plane type mismatch", name)
	}
	return &PubSubService[T]{node: n, ch: ch, plane: plane}, nil
}

// Name returns the service name.
func (s *PubSubService[T]) Name() string { return s.ch.name }

// Config returns the recorded static configuration.
func (s *PubSubService[T]) Config() PubSubConfig { return s.plane.cfg }

// Close releases the service handle. Endpoints created from it keep their
// own transport references and stay valid.
func (s *PubSubService[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ch.release(s.node.id)
}

// Publisher is the sending endpoint of a publish-subscribe service.
// Handles are not safe for concurrent use.
type Publisher[T any] struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *pubSubPlane[T]
	st     *pubState[T]
	loaned atomix.Uint32
	closed bool
}

// Publisher creates a sending endpoint; fails with PublisherCreationFailed
// when the configured publisher limit is reached.
func (s *PubSubService[T]) Publisher() (*Publisher[T], error) {
	if s.closed {
		panic("memq: publisher on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.pubs)) >= pl.cfg.MaxPublishers {
		return nil, failf(PublisherCreationFailed, "publisher limit %d reached", pl.cfg.MaxPublishers)
	}
	id := endpointSerial.Add(1)
	// The pool must cover loanable slots plus everything that can be in
	// flight: one queue per subscriber plus the history ring.
	poolSize := pl.cfg.MaxLoanedSamples + pl.cfg.MaxSubscribers*pl.cfg.SubscriberBufferSize + pl.cfg.HistorySize + 1
	ps := &pubState[T]{id: id, pool: newSlotPool[T](poolSize, id)}
	for _, ss := range pl.subs {
		pq := &pairQueue[T]{pubID: id, subID: ss.id,
			q: newBoundedQueue[*slot[T]](pl.cfg.SubscriberBufferSize, pl.cfg.SafeOverflow)}
		ps.targets = append(ps.targets, pq)
		ss.queues = appendCow(ss.queues, pq)
	}
	pl.pubs[id] = ps
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("publisher", id).Msg("publisher created")
	return &Publisher[T]{id: id, node: s.node.id, ch: s.ch, plane: pl, st: ps}, nil
}

// ID returns the publisher's process-unique endpoint serial.
func (p *Publisher[T]) ID() uint32 { return p.id }

// Loan reserves one free slot from the publisher's bounded pool for
// exclusive in-place writing. Fails with SampleLoanFailed when
// MaxLoanedSamples handles are outstanding or the pool is exhausted.
func (p *Publisher[T]) Loan() (*SampleMut[T], error) {
	if p.closed {
		panic("memq: loan on closed publisher")
	}
	max := p.plane.cfg.MaxLoanedSamples
	for {
		c := p.loaned.Load()
		if c >= max {
			return nil, failf(SampleLoanFailed, "loan limit %d reached", max)
		}
		if p.loaned.CompareAndSwap(c, c+1) {
			break
		}
	}
	s := p.st.pool.loan()
	if s == nil {
		p.loaned.Add(^uint32(0))
		return nil, failf(SampleLoanFailed, "slot pool exhausted")
	}
	return &SampleMut[T]{pub: p, slot: s}, nil
}

// SendCopy loans a slot, copies v into it, and sends it. Exactly one copy;
// ergonomics over Loan, not a separate transfer path.
func (p *Publisher[T]) SendCopy(v T) error {
	sm, err := p.Loan()
	if err != nil {
		return err
	}
	sm.Write(v)
	return sm.Send()
}

// send publishes a committed slot to every connected subscriber and, when
// history is configured, into the history ring.
func (p *Publisher[T]) send(s *slot[T]) error {
	pl := p.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	defer p.loaned.Add(^uint32(0))

	n := uint32(len(p.st.targets))
	if pl.cfg.HistorySize > 0 {
		n++
	}
	s.commit(n)
	if n == 0 {
		return nil
	}

	var sendErr error
	for _, pq := range p.st.targets {
		evicted, overflowed, err := pq.q.push(s)
		if err != nil {
			// Full non-overflowing queue: this subscriber misses the
			// sample, the rest still receive it.
			s.unref()
			sendErr = wouldBlock(SendFailed, "subscriber queue full")
			continue
		}
		if overflowed {
			evicted.unref()
		}
	}
	if pl.cfg.HistorySize > 0 {
		pl.hist = append(pl.hist, s)
		if uint32(len(pl.hist)) > pl.cfg.HistorySize {
			old := pl.hist[0]
			pl.hist = pl.hist[1:]
			old.unref()
		}
	}
	return sendErr
}

// Close removes the publisher from the service roster. Its pair queues stay
// with their subscribers until drained or the subscriber closes, so samples
// already queued remain readable.
func (p *Publisher[T]) Close() {
	if p.closed {
		return
	}
	p.closed = true
	pl := p.plane
	pl.mu.Lock()
	delete(pl.pubs, p.id)
	pl.mu.Unlock()
	p.ch.release(p.node)
}

// Subscriber is the receiving endpoint of a publish-subscribe service.
// Handles are not safe for concurrent use.
type Subscriber[T any] struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *pubSubPlane[T]
	st     *subState[T]
	rr     int // round-robin cursor over pair queues
	closed bool
}

// Subscriber creates a receiving endpoint; fails with
// SubscriberCreationFailed when the configured subscriber limit is reached.
// With history configured, the most recent HistorySize samples are replayed
// to the new subscriber ahead of live traffic.
func (s *PubSubService[T]) Subscriber() (*Subscriber[T], error) {
	if s.closed {
		panic("memq: subscriber on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.subs)) >= pl.cfg.MaxSubscribers {
		return nil, failf(SubscriberCreationFailed, "subscriber limit %d reached", pl.cfg.MaxSubscribers)
	}
	id := endpointSerial.Add(1)
	ss := &subState[T]{id: id}
	if pl.cfg.HistorySize > 0 {
		ss.histQ = newBoundedQueue[*slot[T]](pl.cfg.HistorySize, true)
		for _, h := range pl.hist {
			h.refs.Add(1)
			if _, _, err := ss.histQ.push(h); err != nil {
				h.unref()
			}
		}
	}
	for _, ps := range pl.pubs {
		pq := &pairQueue[T]{pubID: ps.id, subID: id,
			q: newBoundedQueue[*slot[T]](pl.cfg.SubscriberBufferSize, pl.cfg.SafeOverflow)}
		ps.targets = append(ps.targets, pq)
		ss.queues = appendCow(ss.queues, pq)
	}
	pl.subs[id] = ss
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("subscriber", id).Msg("subscriber created")
	return &Subscriber[T]{id: id, node: s.node.id, ch: s.ch, plane: pl, st: ss}, nil
}

// ID returns the subscriber's process-unique endpoint serial.
func (s *Subscriber[T]) ID() uint32 { return s.id }

// snapshot returns the current pair queue roster and history queue.
func (s *Subscriber[T]) snapshot() ([]*pairQueue[T], boundedQueue[*slot[T]]) {
	s.plane.mu.Lock()
	qs, hq := s.st.queues, s.st.histQ
	s.plane.mu.Unlock()
	return qs, hq
}

// Receive polls for the next published sample without blocking. An empty
// queue is (nil, nil), never an error; ReceiveFailed is reserved for
// transport-level faults. Queues are polled round-robin across publishers;
// within one publisher, samples arrive in publish order.
func (s *Subscriber[T]) Receive() (*Sample[T], error) {
	if s.closed {
		panic("memq: receive on closed subscriber")
	}
	qs, hq := s.snapshot()
	if hq != nil {
		if v, err := hq.pop(); err == nil {
			return &Sample[T]{slot: v}, nil
		}
	}
	n := len(qs)
	for i := 0; i < n; i++ {
		pq := qs[(s.rr+i)%n]
		v, err := pq.q.pop()
		if err == nil {
			s.rr = (s.rr + i + 1) % n
			return &Sample[T]{slot: v}, nil
		}
	}
	return nil, nil
}

// Pending reports whether Receive would yield a sample. This is the
// readiness predicate the WaitSet polls.
func (s *Subscriber[T]) Pending() bool {
	if s.closed {
		return false
	}
	qs, hq := s.snapshot()
	if hq != nil && hq.pending() {
		return true
	}
	for _, pq := range qs {
		if pq.q.pending() {
			return true
		}
	}
	return false
}

// Close removes the subscriber from the service roster and returns all
// undelivered slots to their pools.
func (s *Subscriber[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	pl := s.plane
	pl.mu.Lock()
	delete(pl.subs, s.id)
	for _, ps := range pl.pubs {
		ps.targets = removeCow(ps.targets, func(pq *pairQueue[T]) bool { return pq.subID == s.id })
	}
	// Producers are excluded by the plane lock, so draining our own queues
	// here keeps the single-consumer discipline.
	for _, pq := range s.st.queues {
		for {
			v, err := pq.q.pop()
			if err != nil {
				break
			}
			v.unref()
		}
	}
	if s.st.histQ != nil {
		for {
			v, err := s.st.histQ.pop()
			if err != nil {
				break
			}
			v.unref()
		}
	}
	pl.mu.Unlock()
	s.ch.release(s.node)
}
