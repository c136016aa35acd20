// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"code.hybscloud.com/kont"
)

// PublishThen publishes a value and then continues with next.
// Fuses Perform(Publish[T]{…}) + Then.
func PublishThen[T, B any](p *Publisher[T], v T, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Publish[T]{Via: p, Value: v}), next)
}

// RecvBind receives a sample and passes it to f.
// Fuses Perform(Recv[T]{…}) + Bind. f owns the handle and must Release it.
func RecvBind[T, B any](s *Subscriber[T], f func(*Sample[T]) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Recv[T]{From: s}), f)
}

// NotifyThen signals an event and then continues with next.
// Fuses Perform(Notify{…}) + Then.
func NotifyThen[B any](n *Notifier, id EventID, next kont.Eff[B]) kont.Eff[B] {
	return kont.Then(kont.Perform(Notify{Via: n, Event: id}), next)
}

// EventBind waits for one event id and passes it to f.
// Fuses Perform(EventWait{…}) + Bind.
func EventBind[B any](l *Listener, f func(EventID) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(EventWait{From: l}), f)
}

// RequestBind sends a request and passes its pending response to f.
// Fuses Perform(RequestSend[Req, Res]{…}) + Bind. On a fire-and-forget
// service f receives nil.
func RequestBind[Req, Res, B any](c *Client[Req, Res], v Req, f func(*PendingResponse[Req, Res]) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(RequestSend[Req, Res]{Via: c, Value: v}), f)
}

// ResponseBind waits for one response and passes it to f.
// Fuses Perform(ResponseWait[Req, Res]{…}) + Bind. f owns the handle and
// must Release it.
func ResponseBind[Req, Res, B any](p *PendingResponse[Req, Res], f func(*Response[Res]) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(ResponseWait[Req, Res]{From: p}), f)
}

// Done completes a messaging program with a.
// Shorthand for kont.Pure.
func Done[A any](a A) kont.Eff[A] {
	return kont.Pure(a)
}
