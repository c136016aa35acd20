// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"errors"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Publish is the effect operation for publishing a value of type T.
// Perform(Publish[T]{Via: p, Value: v}) copies v into a loaned slot and
// sends it.
type Publish[T any] struct {
	kont.Phantom[struct{}]
	Via   *Publisher[T]
	Value T
}

// DispatchWait handles Publish on the messaging plane.
// Non-blocking: returns iox.ErrWouldBlock while no slot is loanable.
func (p Publish[T]) DispatchWait() (kont.Resumed, error) {
	if err := p.Via.SendCopy(p.Value); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// Recv is the effect operation for receiving a published sample.
// Perform(Recv[T]{From: s}) yields the next *Sample[T]; the continuation
// owns the handle and must Release it.
type Recv[T any] struct {
	kont.Phantom[*Sample[T]]
	From *Subscriber[T]
}

// DispatchWait handles Recv on the messaging plane.
// Non-blocking: returns iox.ErrWouldBlock while no sample is queued.
func (r Recv[T]) DispatchWait() (kont.Resumed, error) {
	s, err := r.From.Receive()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, iox.ErrWouldBlock
	}
	return s, nil
}

// Notify is the effect operation for signaling an event.
// Perform(Notify{Via: n, Event: id}) wakes all attached listeners.
type Notify struct {
	kont.Phantom[struct{}]
	Via   *Notifier
	Event EventID
}

// DispatchWait handles Notify on the messaging plane. Never blocks: a
// full listener queue displaces the oldest undelivered notification.
func (n Notify) DispatchWait() (kont.Resumed, error) {
	if err := n.Via.Notify(n.Event); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// EventWait is the effect operation for receiving one event id.
// Perform(EventWait{From: l}) yields the next EventID.
type EventWait struct {
	kont.Phantom[EventID]
	From *Listener
}

// DispatchWait handles EventWait on the messaging plane.
// Non-blocking: returns iox.ErrWouldBlock while no event is pending.
func (e EventWait) DispatchWait() (kont.Resumed, error) {
	id, ok, err := e.From.TryWait()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, iox.ErrWouldBlock
	}
	return id, nil
}

// RequestSend is the effect operation for sending one request.
// Perform(RequestSend[Req, Res]{Via: c, Value: v}) yields the
// *PendingResponse correlated with the request, or nil on a
// fire-and-forget service.
type RequestSend[Req, Res any] struct {
	kont.Phantom[*PendingResponse[Req, Res]]
	Via   *Client[Req, Res]
	Value Req
}

// DispatchWait handles RequestSend on the messaging plane.
// Non-blocking: returns iox.ErrWouldBlock while no request slot is
// loanable or a non-overflowing server queue is full.
func (r RequestSend[Req, Res]) DispatchWait() (kont.Resumed, error) {
	pr, err := r.Via.SendCopy(r.Value)
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// ResponseWait is the effect operation for receiving one response.
// Perform(ResponseWait[Req, Res]{From: p}) yields the next *Response[Res];
// the continuation owns the handle and must Release it.
type ResponseWait[Req, Res any] struct {
	kont.Phantom[*Response[Res]]
	From *PendingResponse[Req, Res]
}

// DispatchWait handles ResponseWait on the messaging plane.
// Non-blocking: returns iox.ErrWouldBlock while no response is queued.
func (r ResponseWait[Req, Res]) DispatchWait() (kont.Resumed, error) {
	v, err := r.From.TryReceive()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, iox.ErrWouldBlock
	}
	return v, nil
}

// waitDispatcher is the structural interface for messaging operations.
// DispatchWait is non-blocking: it returns iox.ErrWouldBlock at the
// transfer boundary when the bounded queue or pool cannot make progress.
type waitDispatcher interface {
	DispatchWait() (kont.Resumed, error)
}

// waitHandler implements kont.Handler for messaging effects.
// Waits on iox.ErrWouldBlock, converting non-blocking dispatch into
// blocking evaluation for Exec/ExecExpr. Any other dispatch error is a
// broken handler contract and panics.
type waitHandler[R any] struct{}

// Dispatch implements kont.Handler via structural interface assertion.
// Waits past the iox.ErrWouldBlock boundary with adaptive backoff.
func (waitHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	wop, ok := op.(waitDispatcher)
	if !ok {
		panic("memq: unhandled effect in waitHandler")
	}
	return dispatchWait(wop), true
}

// dispatchWait blocks until DispatchWait succeeds, backing off on
// iox.ErrWouldBlock (transfer readiness waiting).
func dispatchWait(wop waitDispatcher) kont.Resumed {
	var bo iox.Backoff
	for {
		v, err := wop.DispatchWait()
		if err == nil {
			return v
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			panic("memq: non-retryable dispatch failure: " + err.Error())
		}
		bo.Wait()
	}
}
