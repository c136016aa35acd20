// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq_test

import (
	"reflect"
	"testing"
	"testing/quick"

	"code.hybscloud.com/memq"
)

// TestPropertyPublishOrder proves that for any arbitrarily generated
// sequence of values, a single publisher-subscriber pair delivers exactly
// that sequence: no loss, duplication, or reordering.
func TestPropertyPublishOrder(t *testing.T) {
	propertyOrder := func(payload []uint64) bool {
		n, err := memq.NewNode(memq.WithTransport(memq.NewMemTransport()))
		if err != nil {
			return false
		}
		svc, err := memq.OpenPublishSubscribe[uint64](n, "prop-order", memq.PubSubConfig{
			// quick generates at most 50 elements; 64 keeps the queue from
			// overflowing so eviction never masks an ordering defect.
			SubscriberBufferSize: 64,
		})
		if err != nil {
			return false
		}
		pub, err := svc.Publisher()
		if err != nil {
			return false
		}
		sub, err := svc.Subscriber()
		if err != nil {
			return false
		}

		for _, v := range payload {
			if err := pub.SendCopy(v); err != nil {
				return false
			}
		}
		received := make([]uint64, 0, len(payload))
		for {
			s, err := sub.Receive()
			if err != nil {
				return false
			}
			if s == nil {
				break
			}
			received = append(received, s.Value())
			s.Release()
		}
		if len(payload) == 0 && len(received) == 0 {
			return true
		}
		return reflect.DeepEqual(payload, received)
	}

	if err := quick.Check(propertyOrder, nil); err != nil {
		t.Error(err)
	}
}

// TestPropertyEventDelivery proves that any arbitrarily generated sequence
// of bounded event ids survives the notifier→listener queue intact.
func TestPropertyEventDelivery(t *testing.T) {
	propertyEvents := func(raw []uint16) bool {
		n, err := memq.NewNode(memq.WithTransport(memq.NewMemTransport()))
		if err != nil {
			return false
		}
		svc, err := memq.OpenEvent(n, "prop-events", memq.EventConfig{MaxEventID: 255})
		if err != nil {
			return false
		}
		lis, err := svc.Listener()
		if err != nil {
			return false
		}
		not, err := svc.Notifier()
		if err != nil {
			return false
		}

		sent := make([]memq.EventID, len(raw))
		for i, r := range raw {
			sent[i] = memq.EventID(r) % 256
			if err := not.Notify(sent[i]); err != nil {
				return false
			}
		}
		received := make([]memq.EventID, 0, len(sent))
		for {
			id, ok, err := lis.TryWait()
			if err != nil {
				return false
			}
			if !ok {
				break
			}
			received = append(received, id)
		}
		if len(sent) == 0 && len(received) == 0 {
			return true
		}
		return reflect.DeepEqual(sent, received)
	}

	if err := quick.Check(propertyEvents, nil); err != nil {
		t.Error(err)
	}
}

// TestPropertyConfigCompatibility proves the open-existing rule: a request
// is compatible exactly when every non-zero limit is at most the recorded
// one.
func TestPropertyConfigCompatibility(t *testing.T) {
	propertyCompat := func(recPubs, recSubs, reqPubs, reqSubs uint8) bool {
		recorded := memq.PubSubConfig{
			MaxPublishers:  uint32(recPubs%16) + 1,
			MaxSubscribers: uint32(recSubs%16) + 1,
		}
		requested := memq.PubSubConfig{
			MaxPublishers:  uint32(reqPubs % 32),
			MaxSubscribers: uint32(reqSubs % 32),
		}

		n, err := memq.NewNode(memq.WithTransport(memq.NewMemTransport()))
		if err != nil {
			return false
		}
		if _, err := memq.OpenPublishSubscribe[uint64](n, "prop-compat", recorded); err != nil {
			return false
		}
		_, err = memq.OpenPublishSubscribe[uint64](n, "prop-compat", requested)

		fits := func(req, rec uint32) bool { return req == 0 || req <= rec }
		want := fits(requested.MaxPublishers, recorded.MaxPublishers) &&
			fits(requested.MaxSubscribers, recorded.MaxSubscribers)
		return (err == nil) == want
	}

	if err := quick.Check(propertyCompat, nil); err != nil {
		t.Error(err)
	}
}
