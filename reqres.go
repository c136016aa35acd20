// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"reflect"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// reqEnvelope carries one request slot with its correlation data.
type reqEnvelope[Req any] struct {
	slot     *slot[Req]
	clientID uint32
	serial   uint32
	expects  bool // false for fire-and-forget
}

// reqPair is the directed request queue of one client→server connection.
type reqPair[Req any] struct {
	clientID uint32
	serverID uint32
	q        boundedQueue[reqEnvelope[Req]]
}

type clientState[Req, Res any] struct {
	id      uint32
	pool    *slotPool[Req]
	targets []*reqPair[Req] // copy-on-write, guarded by plane.mu
	pending map[uint32]*PendingResponse[Req, Res]
	active  uint32 // live pending responses, guarded by plane.mu
}

type serverState[Req, Res any] struct {
	id     uint32
	queues []*reqPair[Req] // copy-on-write, guarded by plane.mu
	pool   *slotPool[Res]
}

// reqResPlane is the pattern plane of one request-response channel.
type reqResPlane[Req, Res any] struct {
	cfg       RequestResponseConfig
	mu        sync.Mutex
	clients   map[uint32]*clientState[Req, Res]
	servers   map[uint32]*serverState[Req, Res]
	reqSerial atomix.Uint32
}

func newReqResPlane[Req, Res any](cfg RequestResponseConfig) *reqResPlane[Req, Res] {
	return &reqResPlane[Req, Res]{
		cfg:     cfg,
		clients: make(map[uint32]*clientState[Req, Res]),
		servers: make(map[uint32]*serverState[Req, Res]),
	}
}

// pairTypeOf tags a request-response channel with both payload types.
func pairTypeOf[Req, Res any]() reflect.Type {
	return reflect.TypeOf((*struct {
		Request  Req
		Response Res
	})(nil)).Elem()
}

// ReqResService is a named request-response channel with request type Req
// and response type Res.
type ReqResService[Req, Res any] struct {
	node   *Node
	ch     *channel
	plane  *reqResPlane[Req, Res]
	closed bool
}

// OpenRequestResponse creates or opens a request-response service. Zero
// config fields take the [DefaultRequestResponseConfig] values.
func OpenRequestResponse[Req, Res any](n *Node, name string, cfg RequestResponseConfig) (*ReqResService[Req, Res], error) {
	ch, err := openService(n, name, PatternRequestResponse, cfg, pairTypeOf[Req, Res]())
	if err != nil {
		return nil, err
	}
	ch.mu.Lock()
	if ch.plane == nil {
		ch.plane = newReqResPlane[Req, Res](ch.cfg.(RequestResponseConfig))
	}
	plane, ok := ch.plane.(*reqResPlane[Req, Res])
	ch.mu.Unlock()
	if !ok {
		ch.release(n.id)
		return nil, failf(ServiceCreationFailed, "service %q plane type mismatch", name)
	}
	return &ReqResService[Req, Res]{node: n, ch: ch, plane: plane}, nil
}

// Name returns the service name.
func (s *ReqResService[Req, Res]) Name() string { return s.ch.name }

// Config returns the recorded static configuration.
func (s *ReqResService[Req, Res]) Config() RequestResponseConfig { return s.plane.cfg }

// Close releases the service handle.
func (s *ReqResService[Req, Res]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ch.release(s.node.id)
}

// Client is the requesting endpoint of a request-response service.
// Handles are not safe for concurrent use.
type Client[Req, Res any] struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *reqResPlane[Req, Res]
	st     *clientState[Req, Res]
	loaned atomix.Uint32
	closed bool
}

// Client creates a requesting endpoint; fails with ClientCreationFailed
// when the configured client limit is reached.
func (s *ReqResService[Req, Res]) Client() (*Client[Req, Res], error) {
	if s.closed {
		panic("memq: client on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.clients)) >= pl.cfg.MaxClients {
		return nil, failf(ClientCreationFailed, "client limit %d reached", pl.cfg.MaxClients)
	}
	id := endpointSerial.Add(1)
	poolSize := pl.cfg.MaxLoanedRequests + pl.cfg.MaxServers*(pl.cfg.MaxActiveRequestsPerClient+pl.cfg.MaxLoanedRequests) + 1
	cs := &clientState[Req, Res]{
		id:      id,
		pool:    newSlotPool[Req](poolSize, id),
		pending: make(map[uint32]*PendingResponse[Req, Res]),
	}
	qCap := pl.cfg.MaxActiveRequestsPerClient + pl.cfg.MaxLoanedRequests
	for _, srv := range pl.servers {
		rp := &reqPair[Req]{clientID: id, serverID: srv.id,
			q: newBoundedQueue[reqEnvelope[Req]](qCap, pl.cfg.SafeOverflowRequests)}
		cs.targets = append(cs.targets, rp)
		srv.queues = appendCow(srv.queues, rp)
	}
	pl.clients[id] = cs
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("client", id).Msg("client created")
	return &Client[Req, Res]{id: id, node: s.node.id, ch: s.ch, plane: pl, st: cs}, nil
}

// ID returns the client's process-unique endpoint serial.
func (c *Client[Req, Res]) ID() uint32 { return c.id }

// Loan reserves one free request slot for exclusive in-place writing.
// Fails with RequestLoanFailed when MaxLoanedRequests handles are
// outstanding or the pool is exhausted.
func (c *Client[Req, Res]) Loan() (*RequestMut[Req, Res], error) {
	if c.closed {
		panic("memq: loan on closed client")
	}
	max := c.plane.cfg.MaxLoanedRequests
	for {
		n := c.loaned.Load()
		if n >= max {
			return nil, failf(RequestLoanFailed, "loan limit %d reached", max)
		}
		if c.loaned.CompareAndSwap(n, n+1) {
			break
		}
	}
	s := c.st.pool.loan()
	if s == nil {
		c.loaned.Add(^uint32(0))
		return nil, failf(RequestLoanFailed, "request pool exhausted")
	}
	return &RequestMut[Req, Res]{cl: c, slot: s}, nil
}

// SendCopy loans a request slot, copies v into it, and sends it.
func (c *Client[Req, Res]) SendCopy(v Req) (*PendingResponse[Req, Res], error) {
	rm, err := c.Loan()
	if err != nil {
		return nil, err
	}
	rm.Write(v)
	return rm.Send()
}

// send queues the committed request slot for every connected server and,
// unless the service is fire-and-forget, registers a PendingResponse
// correlated by request serial.
func (c *Client[Req, Res]) send(s *slot[Req]) (*PendingResponse[Req, Res], error) {
	pl := c.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	defer c.loaned.Add(^uint32(0))

	expects := !pl.cfg.FireAndForget
	if expects && c.st.active >= pl.cfg.MaxActiveRequestsPerClient {
		s.abandon()
		return nil, failf(RequestSendFailed, "active request limit %d reached", pl.cfg.MaxActiveRequestsPerClient)
	}
	serial := pl.reqSerial.Add(1)

	var pr *PendingResponse[Req, Res]
	if expects {
		pr = &PendingResponse[Req, Res]{
			plane:  pl,
			client: c.st,
			serial: serial,
			q:      newBoundedQueue[*slot[Res]](pl.cfg.ResponseBufferSize, pl.cfg.SafeOverflowResponses),
		}
		c.st.pending[serial] = pr
		c.st.active++
	}

	env := reqEnvelope[Req]{slot: s, clientID: c.id, serial: serial, expects: expects}
	s.commit(uint32(len(c.st.targets)))
	var sendErr error
	for _, rp := range c.st.targets {
		evicted, overflowed, err := rp.q.push(env)
		if err != nil {
			s.unref()
			sendErr = wouldBlock(RequestSendFailed, "server request queue full")
			continue
		}
		if overflowed {
			evicted.slot.unref()
		}
	}
	return pr, sendErr
}

// Close removes the client from the service roster. Its pair queues stay
// with the servers until drained, so requests already queued remain
// receivable; responses to them are discarded.
func (c *Client[Req, Res]) Close() {
	if c.closed {
		return
	}
	c.closed = true
	pl := c.plane
	pl.mu.Lock()
	delete(pl.clients, c.id)
	pl.mu.Unlock()
	c.ch.release(c.node)
}

// RequestMut is a loaned, writable request handle. Send consumes it.
type RequestMut[Req, Res any] struct {
	cl   *Client[Req, Res]
	slot *slot[Req]
	done bool
}

// Payload exposes the request slot's memory for in-place writing.
func (r *RequestMut[Req, Res]) Payload() *Req {
	if r.done {
		panic("memq: payload access on consumed request")
	}
	return &r.slot.val
}

// Write assigns the request payload by value; exactly one copy.
func (r *RequestMut[Req, Res]) Write(v Req) {
	*r.Payload() = v
}

// Send queues the request for the connected servers and consumes the
// handle; any further use panics. Unless the service is fire-and-forget,
// the returned PendingResponse correlates this request's responses. Fails
// with RequestSendFailed at the active-request cap or on a full
// non-overflowing server queue.
func (r *RequestMut[Req, Res]) Send() (*PendingResponse[Req, Res], error) {
	if r.done {
		panic("memq: send on consumed request")
	}
	r.done = true
	return r.cl.send(r.slot)
}

// Release returns the unsent request slot to the pool without sending.
func (r *RequestMut[Req, Res]) Release() {
	if r.done {
		return
	}
	r.done = true
	r.slot.abandon()
	r.cl.loaned.Add(^uint32(0))
}

// PendingResponse correlates one sent request with its incoming responses.
// A server may stream several responses for one request; borrowed response
// handles are bounded by MaxBorrowedResponsesPerPendingResponse. Close
// drops interest; late responses are then discarded by the servers.
// Handles are not safe for concurrent use.
type PendingResponse[Req, Res any] struct {
	plane    *reqResPlane[Req, Res]
	client   *clientState[Req, Res]
	serial   uint32
	q        boundedQueue[*slot[Res]]
	borrowed atomix.Uint32
	closed   bool
}

// RequestSerial returns the correlation serial of the originating request.
func (p *PendingResponse[Req, Res]) RequestSerial() uint32 { return p.serial }

// TryReceive returns the next response without blocking. No pending
// response is (nil, nil), never an error. Fails with
// ResponseReceiveFailed when MaxBorrowedResponsesPerPendingResponse
// handles are outstanding.
func (p *PendingResponse[Req, Res]) TryReceive() (*Response[Res], error) {
	if p.closed {
		panic("memq: receive on closed pending response")
	}
	if p.borrowed.Load() >= p.plane.cfg.MaxBorrowedResponsesPerPendingResponse {
		return nil, failf(ResponseReceiveFailed, "borrowed response limit %d reached",
			p.plane.cfg.MaxBorrowedResponsesPerPendingResponse)
	}
	s, err := p.q.pop()
	if err != nil {
		return nil, nil
	}
	p.borrowed.Add(1)
	return &Response[Res]{slot: s, borrowed: &p.borrowed}, nil
}

// TimedReceive blocks up to d for the next response; expiry is (nil, nil).
func (p *PendingResponse[Req, Res]) TimedReceive(d time.Duration) (*Response[Res], error) {
	deadline := time.Now().Add(d)
	var bo iox.Backoff
	for {
		r, err := p.TryReceive()
		if r != nil || err != nil {
			return r, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		bo.Wait()
	}
}

// BlockingReceive waits indefinitely for the next response.
func (p *PendingResponse[Req, Res]) BlockingReceive() (*Response[Res], error) {
	var bo iox.Backoff
	for {
		r, err := p.TryReceive()
		if r != nil || err != nil {
			return r, err
		}
		bo.Wait()
	}
}

// Pending reports whether TryReceive would yield a response. This is the
// readiness predicate the WaitSet polls.
func (p *PendingResponse[Req, Res]) Pending() bool {
	if p.closed {
		return false
	}
	return p.q.pending()
}

// Close drops interest in further responses and frees undelivered ones.
func (p *PendingResponse[Req, Res]) Close() {
	if p.closed {
		return
	}
	p.closed = true
	pl := p.plane
	pl.mu.Lock()
	if _, live := p.client.pending[p.serial]; live {
		delete(p.client.pending, p.serial)
		p.client.active--
	}
	for {
		s, err := p.q.pop()
		if err != nil {
			break
		}
		s.unref()
	}
	pl.mu.Unlock()
}

// Response is a received, read-only response handle.
type Response[Res any] struct {
	slot     *slot[Res]
	borrowed *atomix.Uint32
	released bool
}

// Payload exposes the response slot's memory for in-place reading.
func (r *Response[Res]) Payload() *Res {
	if r.released {
		panic("memq: payload access on released response")
	}
	return &r.slot.val
}

// Value copies the response payload out.
func (r *Response[Res]) Value() Res {
	return *r.Payload()
}

// Origin returns the serial of the server that sent this response.
func (r *Response[Res]) Origin() uint32 {
	if r.released {
		panic("memq: origin access on released response")
	}
	return r.slot.origin
}

// Release returns the borrow and drops the slot reference.
func (r *Response[Res]) Release() {
	if r.released {
		return
	}
	r.released = true
	r.borrowed.Add(^uint32(0))
	r.slot.unref()
}

// Server is the responding endpoint of a request-response service.
// Handles are not safe for concurrent use.
type Server[Req, Res any] struct {
	id     uint32
	node   uint32
	ch     *channel
	plane  *reqResPlane[Req, Res]
	st     *serverState[Req, Res]
	rr     int
	closed bool
}

// Server creates a responding endpoint; fails with ServerCreationFailed
// when the configured server limit is reached.
func (s *ReqResService[Req, Res]) Server() (*Server[Req, Res], error) {
	if s.closed {
		panic("memq: server on closed service")
	}
	pl := s.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if uint32(len(pl.servers)) >= pl.cfg.MaxServers {
		return nil, failf(ServerCreationFailed, "server limit %d reached", pl.cfg.MaxServers)
	}
	id := endpointSerial.Add(1)
	poolSize := pl.cfg.MaxClients*pl.cfg.ResponseBufferSize + pl.cfg.MaxBorrowedResponsesPerPendingResponse + 1
	srv := &serverState[Req, Res]{id: id, pool: newSlotPool[Res](poolSize, id)}
	qCap := pl.cfg.MaxActiveRequestsPerClient + pl.cfg.MaxLoanedRequests
	for _, cs := range pl.clients {
		rp := &reqPair[Req]{clientID: cs.id, serverID: id,
			q: newBoundedQueue[reqEnvelope[Req]](qCap, pl.cfg.SafeOverflowRequests)}
		cs.targets = append(cs.targets, rp)
		srv.queues = appendCow(srv.queues, rp)
	}
	pl.servers[id] = srv
	s.ch.retain(s.node.id)
	logger.Debug().Str("service", s.ch.name).Uint32("server", id).Msg("server created")
	return &Server[Req, Res]{id: id, node: s.node.id, ch: s.ch, plane: pl, st: srv}, nil
}

// ID returns the server's process-unique endpoint serial.
func (s *Server[Req, Res]) ID() uint32 { return s.id }

func (s *Server[Req, Res]) snapshot() []*reqPair[Req] {
	s.plane.mu.Lock()
	qs := s.st.queues
	s.plane.mu.Unlock()
	return qs
}

// Receive polls for the next queued request without blocking. An empty
// queue is (nil, nil), never an error. The returned handle carries the
// correlation data needed to respond.
func (s *Server[Req, Res]) Receive() (*Request[Req, Res], error) {
	if s.closed {
		panic("memq: receive on closed server")
	}
	qs := s.snapshot()
	n := len(qs)
	for i := 0; i < n; i++ {
		rp := qs[(s.rr+i)%n]
		env, err := rp.q.pop()
		if err == nil {
			s.rr = (s.rr + i + 1) % n
			return &Request[Req, Res]{srv: s, env: env}, nil
		}
	}
	return nil, nil
}

// Pending reports whether Receive would yield a request.
func (s *Server[Req, Res]) Pending() bool {
	if s.closed {
		return false
	}
	for _, rp := range s.snapshot() {
		if rp.q.pending() {
			return true
		}
	}
	return false
}

// Close removes the server from the service roster and returns queued
// request slots to their pools.
func (s *Server[Req, Res]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	pl := s.plane
	pl.mu.Lock()
	delete(pl.servers, s.id)
	for _, cs := range pl.clients {
		cs.targets = removeCow(cs.targets, func(rp *reqPair[Req]) bool { return rp.serverID == s.id })
	}
	for _, rp := range s.st.queues {
		for {
			env, err := rp.q.pop()
			if err != nil {
				break
			}
			env.slot.unref()
		}
	}
	pl.mu.Unlock()
	s.ch.release(s.node)
}

// Request is a received, read-only request handle. It composes the second
// loan/send cycle: loan a response against it and send the reply, which is
// routed to the originating request's PendingResponse.
type Request[Req, Res any] struct {
	srv      *Server[Req, Res]
	env      reqEnvelope[Req]
	released bool
}

// Payload exposes the request slot's memory for in-place reading.
func (r *Request[Req, Res]) Payload() *Req {
	if r.released {
		panic("memq: payload access on released request")
	}
	return &r.env.slot.val
}

// Value copies the request payload out.
func (r *Request[Req, Res]) Value() Req {
	return *r.Payload()
}

// Origin returns the serial of the client that sent this request.
func (r *Request[Req, Res]) Origin() uint32 { return r.env.clientID }

// ExpectsResponse reports whether the originating client tracks responses.
// Fire-and-forget requests return false; responses to them are discarded.
func (r *Request[Req, Res]) ExpectsResponse() bool { return r.env.expects }

// LoanResponse reserves one free response slot for this request. Fails
// with ResponseLoanFailed when the server's pool is exhausted.
func (r *Request[Req, Res]) LoanResponse() (*ResponseMut[Req, Res], error) {
	if r.released {
		panic("memq: response loan on released request")
	}
	s := r.srv.st.pool.loan()
	if s == nil {
		return nil, failf(ResponseLoanFailed, "response pool exhausted")
	}
	return &ResponseMut[Req, Res]{req: r, slot: s}, nil
}

// SendCopyResponse loans a response slot, copies v into it, and sends it.
func (r *Request[Req, Res]) SendCopyResponse(v Res) error {
	rm, err := r.LoanResponse()
	if err != nil {
		return err
	}
	rm.Write(v)
	return rm.Send()
}

// Release returns the request slot reference without responding.
func (r *Request[Req, Res]) Release() {
	if r.released {
		return
	}
	r.released = true
	r.env.slot.unref()
}

// ResponseMut is a loaned, writable response handle. Send consumes it and
// routes the slot to the originating request's PendingResponse; when that
// pending response was closed — or the request is fire-and-forget — the
// response is discarded without error, as the server must tolerate.
type ResponseMut[Req, Res any] struct {
	req  *Request[Req, Res]
	slot *slot[Res]
	done bool
}

// Payload exposes the response slot's memory for in-place writing.
func (r *ResponseMut[Req, Res]) Payload() *Res {
	if r.done {
		panic("memq: payload access on consumed response")
	}
	return &r.slot.val
}

// Write assigns the response payload by value; exactly one copy.
func (r *ResponseMut[Req, Res]) Write(v Res) {
	*r.Payload() = v
}

// Send delivers the response and consumes the handle. Fails with
// ResponseSendFailed on a full non-overflowing pending response queue.
func (r *ResponseMut[Req, Res]) Send() error {
	if r.done {
		panic("memq: send on consumed response")
	}
	r.done = true
	pl := r.req.srv.plane
	pl.mu.Lock()
	defer pl.mu.Unlock()

	var pr *PendingResponse[Req, Res]
	if cs := pl.clients[r.req.env.clientID]; cs != nil && r.req.env.expects {
		pr = cs.pending[r.req.env.serial]
	}
	if pr == nil {
		r.slot.abandon()
		return nil
	}
	r.slot.commit(1)
	evicted, overflowed, err := pr.q.push(r.slot)
	if err != nil {
		r.slot.unref()
		return wouldBlock(ResponseSendFailed, "pending response queue full")
	}
	if overflowed {
		evicted.unref()
	}
	return nil
}

// Release returns the unsent response slot to the pool.
func (r *ResponseMut[Req, Res]) Release() {
	if r.done {
		return
	}
	r.done = true
	r.slot.abandon()
}
