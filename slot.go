// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import "code.hybscloud.com/atomix"

// Slot states. A slot has exactly one writer while loaned; once committed it
// is read-only and reference-counted by its receivers.
const (
	slotFree uint32 = iota
	slotLoaned
	slotSent
)

// slot is one fixed-size unit of transfer capacity. The loan/commit/unref
// protocol is the only mutual exclusion over the payload: never two
// outstanding loans on the same slot, never a write after commit.
type slot[T any] struct {
	val    T
	state  atomix.Uint32
	refs   atomix.Uint32
	origin uint32 // serial of the owning endpoint
}

// slotPool is an endpoint's bounded pool of payload slots.
type slotPool[T any] struct {
	slots []slot[T]
}

func newSlotPool[T any](size uint32, origin uint32) *slotPool[T] {
	p := &slotPool[T]{slots: make([]slot[T], size)}
	for i := range p.slots {
		p.slots[i].origin = origin
	}
	return p
}

// loan reserves a free slot for exclusive writing, nil when exhausted.
func (p *slotPool[T]) loan() *slot[T] {
	for i := range p.slots {
		s := &p.slots[i]
		if s.state.CompareAndSwap(slotFree, slotLoaned) {
			var zero T
			s.val = zero
			return s
		}
	}
	return nil
}

// abandon returns a loaned, unsent slot to the pool.
func (s *slot[T]) abandon() {
	s.state.Store(slotFree)
}

// commit transitions loaned→sent and arms n receiver references.
// The reference count must be armed before the slot is visible to any
// receiver; with zero receivers the slot goes straight back to the pool.
func (s *slot[T]) commit(n uint32) {
	if n == 0 {
		s.state.Store(slotFree)
		return
	}
	s.refs.Store(n)
	s.state.Store(slotSent)
}

// unref drops one receiver reference; the last reference frees the slot.
func (s *slot[T]) unref() {
	if s.refs.Add(^uint32(0)) == 0 {
		s.state.Store(slotFree)
	}
}
