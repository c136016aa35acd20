// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memq provides zero-copy intra-process messaging over named
// services: publish-subscribe, event signaling, request-response, and a
// WaitSet multiplexer.
//
// Payloads live in bounded per-endpoint slot pools and move by handle,
// never by copy: a producer loans a slot, writes it in place, and sends;
// consumers receive read-only reference-counted handles onto the same
// memory. Sending consumes the loan, releasing the last handle returns
// the slot to its pool.
//
// # Architecture
//
//   - Services: [NewNode] plus [OpenPublishSubscribe], [OpenEvent], [OpenRequestResponse], [OpenBlackboard]. A name maps to at most one service; reopening requires a compatible pattern, payload type, and limits.
//   - Transport: In-process registry ([MemTransport]) of per-pair bounded queues built on [code.hybscloud.com/lfq]; drop-oldest overflow rings where the service configures safe overflow.
//   - Non-blocking: Endpoint operations return immediately; transfer backpressure surfaces as [code.hybscloud.com/iox.ErrWouldBlock] behind [Failure].
//   - Blocking: Timed and indefinite waits, the [WaitSet], and [Exec] all poll with adaptive backoff ([code.hybscloud.com/iox.Backoff]); no goroutines or channels are created.
//   - Error Handling: Fallible operations return [*Failure] with a [FailureKind]; contract violations on consumed or released handles panic.
//
// # API Topologies
//
//   - Publish-subscribe: [Publisher.Loan] → [SampleMut.Send], [Subscriber.Receive] → [Sample.Release]; optional history replay for late subscribers.
//   - Events: [Notifier.Notify] with a bounded [EventID], [Listener.TryWait]/[Listener.TimedWait]/[Listener.BlockingWait].
//   - Request-response: [Client.Loan] → [RequestMut.Send] → [PendingResponse], [Server.Receive] → [Request.LoanResponse] → [ResponseMut.Send].
//   - Multiplexing: [WaitSet.Attach] over any [Source], [WaitSet.WaitAndProcess] with level-triggered readiness; the callback must drain ready sources.
//   - Effects: Operations [Publish], [Recv], [Notify], [EventWait], [RequestSend], [ResponseWait] compose with [PublishThen], [RecvBind], and friends; evaluate with [Exec] or step with [Step] and [Advance]. Bridge via [Reify] and [Reflect].
//   - Context: [AwaitEvent], [AwaitReceive], [AwaitResponse] bound waits by context termination.
//
// # Example
//
//	node, _ := memq.NewNode()
//	svc, _ := memq.OpenPublishSubscribe[uint64](node, "ticks", memq.PubSubConfig{})
//	pub, _ := svc.Publisher()
//	sub, _ := svc.Subscriber()
//	sm, _ := pub.Loan()
//	*sm.Payload() = 42
//	sm.Send()
//	if s, _ := sub.Receive(); s != nil {
//		_ = s.Value()
//		s.Release()
//	}
package memq
