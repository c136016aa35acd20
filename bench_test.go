// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq_test

import (
	"testing"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/memq"
)

// BenchmarkPublishReceive measures a copy-assisted publish/receive cycle.
func BenchmarkPublishReceive(b *testing.B) {
	n := newTestNode(b)
	pub, sub := openPubSub(b, n, "bench-copy", memq.PubSubConfig{})
	b.ReportAllocs()
	for b.Loop() {
		if err := pub.SendCopy(1); err != nil {
			b.Fatal(err)
		}
		s, err := sub.Receive()
		if err != nil || s == nil {
			b.Fatal(s, err)
		}
		s.Release()
	}
}

// BenchmarkLoanSendReceive measures the zero-copy loan/send/receive cycle.
func BenchmarkLoanSendReceive(b *testing.B) {
	n := newTestNode(b)
	pub, sub := openPubSub(b, n, "bench-loan", memq.PubSubConfig{})
	b.ReportAllocs()
	for b.Loop() {
		sm, err := pub.Loan()
		if err != nil {
			b.Fatal(err)
		}
		*sm.Payload() = 1
		if err := sm.Send(); err != nil {
			b.Fatal(err)
		}
		s, err := sub.Receive()
		if err != nil || s == nil {
			b.Fatal(s, err)
		}
		s.Release()
	}
}

// BenchmarkNotifyTryWait measures an event signal round-trip.
func BenchmarkNotifyTryWait(b *testing.B) {
	n := newTestNode(b)
	not, lis := openEvent(b, n, "bench-event", memq.EventConfig{})
	b.ReportAllocs()
	for b.Loop() {
		if err := not.Notify(1); err != nil {
			b.Fatal(err)
		}
		if _, ok, err := lis.TryWait(); !ok || err != nil {
			b.Fatal(ok, err)
		}
	}
}

// BenchmarkRequestResponse measures a full request/response round-trip.
func BenchmarkRequestResponse(b *testing.B) {
	skipRace(b)
	n := newTestNode(b)
	cl, srv := openReqRes(b, n, "bench-rpc", memq.RequestResponseConfig{})
	b.ReportAllocs()
	for b.Loop() {
		pending, err := cl.SendCopy(1)
		if err != nil {
			b.Fatal(err)
		}
		req, err := srv.Receive()
		if err != nil || req == nil {
			b.Fatal(req, err)
		}
		if err := req.SendCopyResponse(2); err != nil {
			b.Fatal(err)
		}
		req.Release()
		res, err := pending.TryReceive()
		if err != nil || res == nil {
			b.Fatal(res, err)
		}
		res.Release()
		pending.Close()
	}
}

// BenchmarkExecPublishRecv measures the effect-bridge round-trip.
func BenchmarkExecPublishRecv(b *testing.B) {
	n := newTestNode(b)
	pub, sub := openPubSub(b, n, "bench-exec", memq.PubSubConfig{})
	b.ReportAllocs()
	for b.Loop() {
		program := memq.PublishThen(pub, 1,
			memq.RecvBind(sub, func(s *memq.Sample[uint64]) kont.Eff[uint64] {
				v := s.Value()
				s.Release()
				return memq.Done(v)
			}),
		)
		memq.Exec(program)
	}
}

// BenchmarkWaitSetReady measures one ready-pass of the waitset loop.
func BenchmarkWaitSetReady(b *testing.B) {
	n := newTestNode(b)
	not, lis := openEvent(b, n, "bench-ws", memq.EventConfig{})
	ws, err := memq.NewWaitSet()
	if err != nil {
		b.Fatal(err)
	}
	defer ws.Close()
	if _, err := ws.Attach(lis); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if err := not.Notify(1); err != nil {
			b.Fatal(err)
		}
		err := ws.WaitAndProcess(func(memq.AttachmentID) memq.Progression {
			for {
				if _, ok, _ := lis.TryWait(); !ok {
					break
				}
			}
			return memq.Stop
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
