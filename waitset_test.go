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

func TestWaitSetAttachDuplicate(t *testing.T) {
	n := newTestNode(t)
	_, lis := openEvent(t, n, "ws-dup", memq.EventConfig{})

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	if _, err := ws.Attach(lis); err != nil {
		t.Fatalf("attach 1: %v", err)
	}
	if _, err := ws.Attach(lis); !errors.Is(err, &memq.Failure{Kind: memq.WaitSetAttachmentFailed}) {
		t.Fatalf("attach 2: got %v, want WaitSetAttachmentFailed", err)
	}
}

func TestWaitSetAttachCapacity(t *testing.T) {
	n := newTestNode(t)
	svc, err := memq.OpenEvent(n, "ws-cap", memq.EventConfig{})
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	a, err := svc.Listener()
	if err != nil {
		t.Fatalf("listener a: %v", err)
	}
	b, err := svc.Listener()
	if err != nil {
		t.Fatalf("listener b: %v", err)
	}

	ws, err := memq.NewWaitSet(memq.WithMaxAttachments(1))
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	if _, err := ws.Attach(a); err != nil {
		t.Fatalf("attach a: %v", err)
	}
	if _, err := ws.Attach(b); !errors.Is(err, &memq.Failure{Kind: memq.WaitSetAttachmentFailed}) {
		t.Fatalf("attach b: got %v, want WaitSetAttachmentFailed", err)
	}
}

func TestWaitAndProcessWakes(t *testing.T) {
	n := newTestNode(t)
	not, lis := openEvent(t, n, "ws-wake", memq.EventConfig{})

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	guard, err := ws.Attach(lis)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := not.Notify(6); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	var woke memq.AttachmentID
	var got memq.EventID
	err = ws.WaitAndProcess(func(id memq.AttachmentID) memq.Progression {
		woke = id
		for {
			ev, ok, _ := lis.TryWait()
			if !ok {
				break
			}
			got = ev
		}
		return memq.Stop
	})
	if err != nil {
		t.Fatalf("WaitAndProcess: %v", err)
	}
	if woke != guard.ID() {
		t.Fatalf("woke attachment %d, want %d", woke, guard.ID())
	}
	if got != 6 {
		t.Fatalf("drained id %d, want 6", got)
	}
}

// TestWaitLevelTriggered pins both directions of the drain obligation:
// a partially drained source wakes the loop again immediately, a fully
// drained one stays quiet.
func TestWaitLevelTriggered(t *testing.T) {
	n := newTestNode(t)
	not, lis := openEvent(t, n, "ws-level", memq.EventConfig{})

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	if _, err := ws.Attach(lis); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	not.Notify(1)
	not.Notify(2)

	passes := 0
	err = ws.WaitAndProcess(func(memq.AttachmentID) memq.Progression {
		passes++
		// Drain exactly one event per pass: the source stays ready until
		// the second pass consumes the last one.
		if _, ok, _ := lis.TryWait(); !ok {
			t.Fatal("callback invoked without a pending event")
		}
		if lis.Pending() {
			return memq.Continue
		}
		return memq.Stop
	})
	if err != nil {
		t.Fatalf("WaitAndProcess: %v", err)
	}
	if passes != 2 {
		t.Fatalf("ran %d callback passes, want 2", passes)
	}
	if lis.Pending() {
		t.Fatal("fully drained source still reports ready")
	}
}

func TestWaitSetDetach(t *testing.T) {
	n := newTestNode(t)
	svc, err := memq.OpenEvent(n, "ws-detach", memq.EventConfig{})
	if err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	la, err := svc.Listener()
	if err != nil {
		t.Fatalf("listener a: %v", err)
	}
	lb, err := svc.Listener()
	if err != nil {
		t.Fatalf("listener b: %v", err)
	}
	not, err := svc.Notifier()
	if err != nil {
		t.Fatalf("Notifier: %v", err)
	}

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	ga, err := ws.Attach(la)
	if err != nil {
		t.Fatalf("attach a: %v", err)
	}
	gb, err := ws.Attach(lb)
	if err != nil {
		t.Fatalf("attach b: %v", err)
	}

	not.Notify(1) // both listeners become ready
	ga.Detach()
	if ws.Len() != 1 {
		t.Fatalf("Len %d after detach, want 1", ws.Len())
	}

	var woken []memq.AttachmentID
	err = ws.WaitAndProcess(func(id memq.AttachmentID) memq.Progression {
		woken = append(woken, id)
		for {
			if _, ok, _ := lb.TryWait(); !ok {
				break
			}
		}
		return memq.Stop
	})
	if err != nil {
		t.Fatalf("WaitAndProcess: %v", err)
	}
	if len(woken) != 1 || woken[0] != gb.ID() {
		t.Fatalf("woken %v, want exactly [%d]", woken, gb.ID())
	}
}

func TestWaitSetCloseStopsWait(t *testing.T) {
	n := newTestNode(t)
	_, lis := openEvent(t, n, "ws-close", memq.EventConfig{})

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	if _, err := ws.Attach(lis); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		ws.Close()
	}()
	err = ws.WaitAndProcess(func(memq.AttachmentID) memq.Progression { return memq.Continue })
	<-done
	if !errors.Is(err, &memq.Failure{Kind: memq.WaitSetRunFailed}) {
		t.Fatalf("got %v, want WaitSetRunFailed", err)
	}
}

func TestWaitSetSignalHandling(t *testing.T) {
	// Construction installs the signal watcher; Close detaches it. The wait
	// loop behavior under a real SIGINT is not driven from a test.
	ws, err := memq.NewWaitSet(memq.WithSignalHandling())
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	ws.Close()
}

func TestWaitSetSubscriberSource(t *testing.T) {
	n := newTestNode(t)
	pub, sub := openPubSub(t, n, "ws-subscriber", memq.PubSubConfig{})

	ws, err := memq.NewWaitSet()
	if err != nil {
		t.Fatalf("NewWaitSet: %v", err)
	}
	defer ws.Close()
	if _, err := ws.Attach(sub); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := pub.SendCopy(64); err != nil {
		t.Fatalf("SendCopy: %v", err)
	}
	var got uint64
	err = ws.WaitAndProcess(func(memq.AttachmentID) memq.Progression {
		for {
			s, _ := sub.Receive()
			if s == nil {
				break
			}
			got = s.Value()
			s.Release()
		}
		return memq.Stop
	})
	if err != nil {
		t.Fatalf("WaitAndProcess: %v", err)
	}
	if got != 64 {
		t.Fatalf("drained %d, want 64", got)
	}
}
