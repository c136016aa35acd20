// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"code.hybscloud.com/iox"
)

// Progression is the callback's control signal to the wait loop.
type Progression uint8

const (
	// Continue keeps the wait loop running.
	Continue Progression = iota
	// Stop terminates the wait loop after the current callback returns.
	Stop
)

// AttachmentID disambiguates which attached source woke the wait.
type AttachmentID uint32

// Source is anything a WaitSet can multiplex: a readiness predicate over
// pending work. Listener, Subscriber, and PendingResponse implement it.
type Source interface {
	Pending() bool
}

// Attachment is the guard of one WaitSet↔source relation. It is a lookup
// relation, not ownership: the source outlives or is independently owned
// from the guard. Detach releases the relation explicitly.
type Attachment struct {
	id       AttachmentID
	ws       *WaitSet
	src      Source
	detached bool
}

// ID returns the attachment identity passed to wait callbacks.
func (a *Attachment) ID() AttachmentID { return a.id }

// Detach removes the source from the WaitSet. Detaching during an active
// wait blocks until the current callback pass completes.
func (a *Attachment) Detach() {
	if a.detached {
		return
	}
	a.detached = true
	w := a.ws
	w.mu.Lock()
	delete(w.bySrc, a.src)
	w.attached = removeCow(w.attached, func(x *Attachment) bool { return x.id == a.id })
	w.mu.Unlock()
}

// WaitSetOption configures a WaitSet.
type WaitSetOption func(*WaitSet)

// WithSignalHandling treats SIGINT/SIGTERM as an implicit ready source
// that terminates WaitAndProcess as if the callback returned Stop.
func WithSignalHandling() WaitSetOption {
	return func(w *WaitSet) { w.signals = true }
}

// WithMaxAttachments overrides the default attachment capacity.
func WithMaxAttachments(n uint32) WaitSetOption {
	return func(w *WaitSet) { w.maxAttachments = n }
}

// defaultMaxAttachments bounds a WaitSet unless configured otherwise.
const defaultMaxAttachments = 256

// WaitSet multiplexes many event sources into one blocking call: the wait
// loop polls attachment readiness and sleeps with adaptive backoff while
// nothing is ready, so one thread serves an arbitrary number of sources.
//
// Drain obligation: readiness is level-triggered. The callback MUST drain
// all currently available events from a ready source before returning —
// a source left partially drained reports ready again immediately and the
// loop wakes again at once. The WaitSet cannot enforce this; see the
// conformance tests for both directions of the contract.
//
// Attach and Detach are serialized against the wait loop's callback pass
// and must not be called from inside the callback.
type WaitSet struct {
	mu             sync.Mutex
	attached       []*Attachment // copy-on-write roster
	bySrc          map[Source]*Attachment
	nextID         AttachmentID
	maxAttachments uint32
	signals        bool
	sigCh          chan os.Signal
	closed         bool
}

// NewWaitSet creates an empty WaitSet.
func NewWaitSet(opts ...WaitSetOption) (*WaitSet, error) {
	w := &WaitSet{
		bySrc:          make(map[Source]*Attachment),
		maxAttachments: defaultMaxAttachments,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxAttachments == 0 || w.maxAttachments > platformMaxEndpoints {
		return nil, failf(WaitSetCreationFailed, "attachment capacity out of range")
	}
	if w.signals {
		w.sigCh = make(chan os.Signal, 1)
		signal.Notify(w.sigCh, os.Interrupt, syscall.SIGTERM)
	}
	return w, nil
}

// Attach registers a source and returns its attachment guard. Fails with
// WaitSetAttachmentFailed when the source is already attached to this
// WaitSet or the attachment capacity is exhausted.
func (w *WaitSet) Attach(src Source) (*Attachment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		panic("memq: attach on closed waitset")
	}
	if _, dup := w.bySrc[src]; dup {
		return nil, failf(WaitSetAttachmentFailed, "source already attached")
	}
	if uint32(len(w.attached)) >= w.maxAttachments {
		return nil, failf(WaitSetAttachmentFailed, "attachment limit %d reached", w.maxAttachments)
	}
	w.nextID++
	a := &Attachment{id: w.nextID, ws: w, src: src}
	w.bySrc[src] = a
	w.attached = appendCow(w.attached, a)
	return a, nil
}

// WaitAndProcess blocks until at least one attached source is ready, then
// invokes the callback once per ready attachment identity; the callback
// looks up which guard fired by id. Continue resumes waiting, Stop returns
// nil. With signal handling enabled, SIGINT/SIGTERM also stop the loop.
// Fails with WaitSetRunFailed when the WaitSet closes mid-wait.
func (w *WaitSet) WaitAndProcess(fn func(AttachmentID) Progression) error {
	var bo iox.Backoff
	for {
		if w.signals {
			select {
			case sig := <-w.sigCh:
				logger.Debug().Str("signal", sig.String()).Msg("waitset stopped by signal")
				return nil
			default:
			}
		}
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return failf(WaitSetRunFailed, "waitset closed during wait")
		}
		progress := false
		stopped := false
		for _, a := range w.attached {
			if !a.src.Pending() {
				continue
			}
			progress = true
			if fn(a.id) == Stop {
				stopped = true
				break
			}
		}
		w.mu.Unlock()
		if stopped {
			return nil
		}
		if progress {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
}

// Len returns the current number of attachments.
func (w *WaitSet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.attached)
}

// Close releases the WaitSet; an active WaitAndProcess returns
// WaitSetRunFailed on its next pass.
func (w *WaitSet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.sigCh != nil {
		signal.Stop(w.sigCh)
	}
}
