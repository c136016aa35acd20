// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq_test

import (
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/memq"
)

// openReqRes opens a request-response service with one client and one server.
func openReqRes(tb testing.TB, n *memq.Node, name string, cfg memq.RequestResponseConfig) (*memq.Client[uint64, uint64], *memq.Server[uint64, uint64]) {
	tb.Helper()
	svc, err := memq.OpenRequestResponse[uint64, uint64](n, name, cfg)
	if err != nil {
		tb.Fatalf("OpenRequestResponse: %v", err)
	}
	cl, err := svc.Client()
	if err != nil {
		tb.Fatalf("Client: %v", err)
	}
	srv, err := svc.Server()
	if err != nil {
		tb.Fatalf("Server: %v", err)
	}
	return cl, srv
}

func TestRequestResponseRoundTrip(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "rpc", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(21)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	if pending == nil {
		t.Fatal("expected a pending response")
	}

	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive: %v, %v", req, err)
	}
	if req.Value() != 21 {
		t.Fatalf("got %d, want 21", req.Value())
	}
	if req.Origin() != cl.ID() {
		t.Fatalf("origin %d, want client %d", req.Origin(), cl.ID())
	}
	if !req.ExpectsResponse() {
		t.Fatal("request must expect a response")
	}
	if err := req.SendCopyResponse(req.Value() * 2); err != nil {
		t.Fatalf("SendCopyResponse: %v", err)
	}
	req.Release()

	res, err := pending.TryReceive()
	if err != nil || res == nil {
		t.Fatalf("TryReceive: %v, %v", res, err)
	}
	if res.Value() != 42 {
		t.Fatalf("got %d, want 42", res.Value())
	}
	if res.Origin() != srv.ID() {
		t.Fatalf("origin %d, want server %d", res.Origin(), srv.ID())
	}
	res.Release()
	pending.Close()
}

func TestResponseCorrelation(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "correlation", memq.RequestResponseConfig{})

	pa, err := cl.SendCopy(1)
	if err != nil {
		t.Fatalf("SendCopy(1): %v", err)
	}
	pb, err := cl.SendCopy(2)
	if err != nil {
		t.Fatalf("SendCopy(2): %v", err)
	}

	// The server answers both requests; each response lands only on the
	// pending response of its originating request.
	for i := 0; i < 2; i++ {
		req, err := srv.Receive()
		if err != nil || req == nil {
			t.Fatalf("Receive %d: %v, %v", i, req, err)
		}
		if err := req.SendCopyResponse(req.Value() * 10); err != nil {
			t.Fatalf("SendCopyResponse: %v", err)
		}
		req.Release()
	}

	ra, err := pa.TryReceive()
	if err != nil || ra == nil || ra.Value() != 10 {
		t.Fatalf("pending a got %v, %v, want 10", ra, err)
	}
	rb, err := pb.TryReceive()
	if err != nil || rb == nil || rb.Value() != 20 {
		t.Fatalf("pending b got %v, %v, want 20", rb, err)
	}
	ra.Release()
	rb.Release()
	if r, _ := pa.TryReceive(); r != nil {
		t.Fatalf("pending a must hold exactly one response, got %d", r.Value())
	}
	pa.Close()
	pb.Close()
}

func TestResponseStreaming(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "streaming", memq.RequestResponseConfig{ResponseBufferSize: 4})

	pending, err := cl.SendCopy(5)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive: %v, %v", req, err)
	}
	// One request, several responses: the pending response streams them in
	// send order.
	for i := uint64(1); i <= 3; i++ {
		if err := req.SendCopyResponse(i); err != nil {
			t.Fatalf("SendCopyResponse(%d): %v", i, err)
		}
	}
	req.Release()

	for want := uint64(1); want <= 3; want++ {
		res, err := pending.TryReceive()
		if err != nil || res == nil {
			t.Fatalf("TryReceive %d: %v, %v", want, res, err)
		}
		if res.Value() != want {
			t.Fatalf("got %d, want %d", res.Value(), want)
		}
		res.Release()
	}
	pending.Close()
}

func TestFireAndForget(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "fire-and-forget", memq.RequestResponseConfig{FireAndForget: true})

	pending, err := cl.SendCopy(77)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	if pending != nil {
		t.Fatal("fire-and-forget must not track a pending response")
	}

	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive: %v, %v", req, err)
	}
	if req.ExpectsResponse() {
		t.Fatal("fire-and-forget request must not expect a response")
	}
	// Responding anyway is tolerated: the response is silently discarded.
	if err := req.SendCopyResponse(1); err != nil {
		t.Fatalf("SendCopyResponse: %v", err)
	}
	req.Release()
}

func TestResponseAfterPendingClosed(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "late-response", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(1)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	pending.Close()

	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive: %v, %v", req, err)
	}
	// Interest was dropped; the late response is discarded without error.
	if err := req.SendCopyResponse(9); err != nil {
		t.Fatalf("late SendCopyResponse: %v", err)
	}
	req.Release()
}

func TestActiveRequestLimit(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, _ := openReqRes(t, n, "active-limit", memq.RequestResponseConfig{MaxActiveRequestsPerClient: 1})

	pending, err := cl.SendCopy(1)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	if _, err := cl.SendCopy(2); !errors.Is(err, &memq.Failure{Kind: memq.RequestSendFailed}) {
		t.Fatalf("got %v, want RequestSendFailed", err)
	}
	// Closing the pending response frees the active slot.
	pending.Close()
	p2, err := cl.SendCopy(3)
	if err != nil {
		t.Fatalf("SendCopy after close: %v", err)
	}
	p2.Close()
}

func TestBorrowedResponseLimit(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "borrow-limit", memq.RequestResponseConfig{
		MaxBorrowedResponsesPerPendingResponse: 1,
		ResponseBufferSize:                     4,
	})

	pending, err := cl.SendCopy(1)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive: %v, %v", req, err)
	}
	for i := uint64(1); i <= 2; i++ {
		if err := req.SendCopyResponse(i); err != nil {
			t.Fatalf("SendCopyResponse(%d): %v", i, err)
		}
	}
	req.Release()

	first, err := pending.TryReceive()
	if err != nil || first == nil {
		t.Fatalf("TryReceive 1: %v, %v", first, err)
	}
	if _, err := pending.TryReceive(); !errors.Is(err, &memq.Failure{Kind: memq.ResponseReceiveFailed}) {
		t.Fatalf("got %v, want ResponseReceiveFailed", err)
	}
	first.Release()
	second, err := pending.TryReceive()
	if err != nil || second == nil {
		t.Fatalf("TryReceive after release: %v, %v", second, err)
	}
	second.Release()
	pending.Close()
}

func TestRequestLoanLimit(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, _ := openReqRes(t, n, "req-loan-limit", memq.RequestResponseConfig{MaxLoanedRequests: 1})

	rm, err := cl.Loan()
	if err != nil {
		t.Fatalf("Loan: %v", err)
	}
	if _, err := cl.Loan(); !errors.Is(err, &memq.Failure{Kind: memq.RequestLoanFailed}) {
		t.Fatalf("got %v, want RequestLoanFailed", err)
	}
	rm.Release()
	rm2, err := cl.Loan()
	if err != nil {
		t.Fatalf("Loan after release: %v", err)
	}
	rm2.Release()
}

func TestEndpointCreationLimits(t *testing.T) {
	n := newTestNode(t)
	svc, err := memq.OpenRequestResponse[uint64, uint64](n, "rpc-limits", memq.RequestResponseConfig{
		MaxServers: 1,
		MaxClients: 1,
	})
	if err != nil {
		t.Fatalf("OpenRequestResponse: %v", err)
	}
	if _, err := svc.Client(); err != nil {
		t.Fatalf("client 1: %v", err)
	}
	if _, err := svc.Client(); !errors.Is(err, &memq.Failure{Kind: memq.ClientCreationFailed}) {
		t.Fatalf("client 2: got %v, want ClientCreationFailed", err)
	}
	if _, err := svc.Server(); err != nil {
		t.Fatalf("server 1: %v", err)
	}
	if _, err := svc.Server(); !errors.Is(err, &memq.Failure{Kind: memq.ServerCreationFailed}) {
		t.Fatalf("server 2: got %v, want ServerCreationFailed", err)
	}
}

func TestBlockingReceiveResponse(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "blocking-rpc", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(4)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		req, err := srv.Receive()
		if err != nil || req == nil {
			return
		}
		req.SendCopyResponse(req.Value() + 1)
		req.Release()
	}()
	res, err := pending.BlockingReceive()
	<-done
	if err != nil || res == nil {
		t.Fatalf("BlockingReceive: %v, %v", res, err)
	}
	if res.Value() != 5 {
		t.Fatalf("got %d, want 5", res.Value())
	}
	res.Release()
	pending.Close()
}

func TestTimedReceiveExpiry(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, _ := openReqRes(t, n, "timed-expiry", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(1)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	defer pending.Close()

	start := time.Now()
	res, err := pending.TimedReceive(30 * time.Millisecond)
	if err != nil {
		t.Fatalf("TimedReceive: %v", err)
	}
	if res != nil {
		t.Fatalf("expected expiry, got %d", res.Value())
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("returned after %v, before the deadline", elapsed)
	}
}

func TestTimedReceiveWakesEarly(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "timed-wake", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(6)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		req, err := srv.Receive()
		if err != nil || req == nil {
			return
		}
		req.SendCopyResponse(req.Value() + 1)
		req.Release()
	}()
	res, err := pending.TimedReceive(5 * time.Second)
	<-done
	if err != nil || res == nil {
		t.Fatalf("TimedReceive: %v, %v", res, err)
	}
	if res.Value() != 7 {
		t.Fatalf("got %d, want 7", res.Value())
	}
	res.Release()
	pending.Close()
}

func TestClientCloseKeepsQueuedRequests(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, srv := openReqRes(t, n, "client-close", memq.RequestResponseConfig{})

	pending, err := cl.SendCopy(5)
	if err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	pending.Close()
	cl.Close()

	// The pair queue outlives the client: the queued request is still
	// received; the response goes nowhere and is discarded without error.
	req, err := srv.Receive()
	if err != nil || req == nil {
		t.Fatalf("Receive after close: %v, %v", req, err)
	}
	if req.Value() != 5 {
		t.Fatalf("got %d, want 5", req.Value())
	}
	if err := req.SendCopyResponse(1); err != nil {
		t.Fatalf("SendCopyResponse: %v", err)
	}
	req.Release()
}

func TestRequestDoubleSendPanics(t *testing.T) {
	skipRace(t)
	n := newTestNode(t)
	cl, _ := openReqRes(t, n, "req-double-send", memq.RequestResponseConfig{})

	rm, err := cl.Loan()
	if err != nil {
		t.Fatalf("Loan: %v", err)
	}
	rm.Write(1)
	pending, err := rm.Send()
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	defer pending.Close()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second send")
		}
	}()
	rm.Send()
}
