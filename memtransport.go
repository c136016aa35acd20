// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"reflect"
	"sort"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// MemTransport is the in-process reference engine behind [Transport].
// Channels live in a process-local registry; the data plane is bounded
// queues over process memory, so "zero-copy" degenerates to in-place
// access of pool slots shared by pointer. A cross-process engine replaces
// this with shared-memory segments without touching the core above it.
type MemTransport struct {
	mu         sync.Mutex
	channels   map[string]*channel
	restricted bool
}

// MemTransportOption configures a MemTransport.
type MemTransportOption func(*MemTransport)

// WithRestrictedDiscovery makes channel enumeration fail with
// InsufficientPermissions, modelling an engine whose discovery surface is
// privilege-gated.
func WithRestrictedDiscovery() MemTransportOption {
	return func(t *MemTransport) { t.restricted = true }
}

// NewMemTransport creates an empty in-process transport.
func NewMemTransport(opts ...MemTransportOption) *MemTransport {
	t := &MemTransport{channels: make(map[string]*channel)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// defaultTransport is the process-global engine nodes use unless
// [WithTransport] overrides it.
var defaultTransport = NewMemTransport()

// DefaultTransport returns the process-global in-process transport.
func DefaultTransport() Transport { return defaultTransport }

// channelSerial numbers channels process-uniquely.
var channelSerial atomix.Uint32

// channel is one named, pattern-fixed communication channel. The registry
// entry owns identity and static configuration; the pattern plane (typed
// queues, slot pools, endpoint rosters) is installed by the first typed
// opener and type-asserted by later ones.
type channel struct {
	id      uint32
	name    string
	pattern Pattern
	cfg     StaticConfig // normalized at creation
	payload reflect.Type // nil for payload-free patterns
	t       *MemTransport

	mu    sync.Mutex
	plane any

	// guarded by t.mu
	refs  int
	nodes map[uint32]int
}

// normalizeConfig applies pattern defaults and validates platform limits.
func normalizeConfig(cfg StaticConfig) (StaticConfig, error) {
	switch c := cfg.(type) {
	case EventConfig:
		n := c.withDefaults()
		return n, n.validate()
	case PubSubConfig:
		n := c.withDefaults()
		return n, n.validate()
	case RequestResponseConfig:
		n := c.withDefaults()
		return n, n.validate()
	case BlackboardConfig:
		n := c.withDefaults()
		return n, n.validate()
	}
	return nil, failf(ServiceCreationFailed, "unknown configuration variant %T", cfg)
}

// configMaxNodes reports the recorded node limit of a configuration.
func configMaxNodes(cfg StaticConfig) uint32 {
	switch c := cfg.(type) {
	case EventConfig:
		return c.MaxNodes
	case PubSubConfig:
		return c.MaxNodes
	case RequestResponseConfig:
		return c.MaxNodes
	case BlackboardConfig:
		return c.MaxNodes
	}
	return 0
}

func (t *MemTransport) openOrCreate(req channelRequest) (*channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, ok := t.channels[req.name]; ok {
		if ch.pattern != req.pattern {
			return nil, failf(ServiceCreationFailed,
				"service %q exists with pattern %s, requested %s", req.name, ch.pattern, req.pattern)
		}
		if ch.payload != req.payload {
			return nil, failf(ServiceCreationFailed,
				"service %q exists with payload type %v, requested %v", req.name, ch.payload, req.payload)
		}
		if !ch.cfg.compatibleWith(req.cfg) {
			return nil, failf(ServiceCreationFailed,
				"service %q exists with incompatible limits", req.name)
		}
		if ch.nodes[req.node] == 0 && uint32(len(ch.nodes)) >= configMaxNodes(ch.cfg) {
			return nil, failf(ServiceCreationFailed,
				"service %q node limit %d reached", req.name, configMaxNodes(ch.cfg))
		}
		ch.refs++
		ch.nodes[req.node]++
		logger.Debug().Str("service", req.name).Uint32("node", req.node).Msg("service opened")
		return ch, nil
	}

	cfg, err := normalizeConfig(req.cfg)
	if err != nil {
		return nil, err
	}
	ch := &channel{
		id:      channelSerial.Add(1),
		name:    req.name,
		pattern: req.pattern,
		cfg:     cfg,
		payload: req.payload,
		t:       t,
		refs:    1,
		nodes:   map[uint32]int{req.node: 1},
	}
	t.channels[req.name] = ch
	logger.Debug().Str("service", req.name).Stringer("pattern", req.pattern).Msg("service created")
	return ch, nil
}

// retain adds one reference (an endpoint) on behalf of a node.
func (c *channel) retain(node uint32) {
	c.t.mu.Lock()
	c.refs++
	c.nodes[node]++
	c.t.mu.Unlock()
}

// release drops one reference; the last reference removes the channel from
// the registry.
func (c *channel) release(node uint32) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.refs--
	if c.nodes[node]--; c.nodes[node] <= 0 {
		delete(c.nodes, node)
	}
	if c.refs <= 0 {
		delete(c.t.channels, c.name)
		logger.Debug().Str("service", c.name).Msg("service removed")
	}
}

func (t *MemTransport) visit(yield func(ChannelInfo) bool) error {
	if t.restricted {
		return failf(InsufficientPermissions, "channel enumeration denied")
	}
	t.mu.Lock()
	infos := make([]ChannelInfo, 0, len(t.channels))
	for _, ch := range t.channels {
		infos = append(infos, ChannelInfo{ID: ch.id, Name: ch.name, Pattern: ch.pattern, Config: ch.cfg})
	}
	t.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	for _, info := range infos {
		if !yield(info) {
			break
		}
	}
	return nil
}

// boundedQueue is one directed data-plane queue between an endpoint pair.
// push is called by exactly one logical producer (serialized by the plane),
// pop by the single owning consumer endpoint.
type boundedQueue[T any] interface {
	// push admits v. Under safe overflow a full queue evicts and returns its
	// oldest entry; otherwise a full queue returns a bare would-block error.
	push(v T) (evicted T, overflowed bool, err error)
	// pop returns the oldest entry, or a bare would-block error when empty.
	pop() (T, error)
	// pending reports whether pop would succeed.
	pending() bool
}

// newBoundedQueue selects the queue discipline for the overflow policy:
// lock-free SPSC when a full queue rejects (lfq expresses that directly),
// a locked ring when a full queue must drop its oldest entry, which an SPSC
// queue cannot express from the producer side.
func newBoundedQueue[T any](capacity uint32, safeOverflow bool) boundedQueue[T] {
	if safeOverflow {
		return &overflowRing[T]{buf: make([]T, capacity)}
	}
	q := &spscQueue[T]{}
	q.q.Init(int(capacity))
	return q
}

// spscQueue is a non-overflowing bounded queue on lfq.SPSC with an occupancy
// counter for readiness polling.
type spscQueue[T any] struct {
	q lfq.SPSC[T]
	n atomix.Uint32
}

func (q *spscQueue[T]) push(v T) (evicted T, overflowed bool, err error) {
	if err = q.q.Enqueue(&v); err != nil {
		return evicted, false, err
	}
	q.n.Add(1)
	return evicted, false, nil
}

func (q *spscQueue[T]) pop() (T, error) {
	v, err := q.q.Dequeue()
	if err == nil {
		q.n.Add(^uint32(0))
	}
	return v, err
}

func (q *spscQueue[T]) pending() bool { return q.n.Load() > 0 }

// overflowRing is a safely overflowing bounded queue: a full push evicts the
// oldest entry so producers never block.
type overflowRing[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  uint32
	count uint32
	n     atomix.Uint32
}

func (r *overflowRing[T]) push(v T) (evicted T, overflowed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	capacity := uint32(len(r.buf))
	if r.count == capacity {
		evicted = r.buf[r.head]
		overflowed = true
		r.buf[r.head] = v
		r.head = (r.head + 1) % capacity
		return evicted, true, nil
	}
	r.buf[(r.head+r.count)%capacity] = v
	r.count++
	r.n.Add(1)
	return evicted, false, nil
}

func (r *overflowRing[T]) pop() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	if r.count == 0 {
		return zero, iox.ErrWouldBlock
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % uint32(len(r.buf))
	r.count--
	r.n.Add(^uint32(0))
	return v, nil
}

func (r *overflowRing[T]) pending() bool { return r.n.Load() > 0 }
