// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

// SampleMut is a loaned, writable payload handle. It exclusively owns one
// transport slot until Send consumes it or Release returns the slot to the
// pool. Failing to do either leaks capacity from the publisher's bounded
// pool. Not safe for concurrent use.
type SampleMut[T any] struct {
	pub  *Publisher[T]
	slot *slot[T]
	done bool // sent or released
}

// Payload exposes the slot's memory for in-place writing.
func (s *SampleMut[T]) Payload() *T {
	if s.done {
		panic("memq: payload access on consumed sample")
	}
	return &s.slot.val
}

// Write assigns the payload by value; exactly one copy into the slot.
// Convenience over Payload, not a separate transfer path.
func (s *SampleMut[T]) Write(v T) {
	*s.Payload() = v
}

// Send publishes the slot to all connected subscribers and consumes the
// handle: sending transitions the loan to "sent" exactly once and any
// further use panics. Fails with SendFailed when a non-overflowing
// subscriber queue is full; delivery to the remaining subscribers still
// happens, and a single failure reports the condition regardless of how
// many subscribers missed the sample.
func (s *SampleMut[T]) Send() error {
	if s.done {
		panic("memq: send on consumed sample")
	}
	s.done = true
	return s.pub.send(s.slot)
}

// Release returns the unsent slot to the pool without publishing.
func (s *SampleMut[T]) Release() {
	if s.done {
		return
	}
	s.done = true
	s.slot.abandon()
	s.pub.loaned.Add(^uint32(0))
}

// Sample is a received, read-only payload handle over a slot published by a
// peer. Release returns the receiver's reference; the slot rejoins its pool
// once all receivers released it. Not safe for concurrent use.
type Sample[T any] struct {
	slot     *slot[T]
	released bool
}

// Payload exposes the slot's memory for in-place reading. The slot is
// read-only for the sample's entire lifetime; writing through the returned
// pointer violates the loan protocol.
func (s *Sample[T]) Payload() *T {
	if s.released {
		panic("memq: payload access on released sample")
	}
	return &s.slot.val
}

// Value copies the payload out. Convenience over Payload.
func (s *Sample[T]) Value() T {
	return *s.Payload()
}

// Origin returns the serial of the publisher that sent this sample.
func (s *Sample[T]) Origin() uint32 {
	if s.released {
		panic("memq: origin access on released sample")
	}
	return s.slot.origin
}

// Release drops this receiver's reference on the slot.
func (s *Sample[T]) Release() {
	if s.released {
		return
	}
	s.released = true
	s.slot.unref()
}
