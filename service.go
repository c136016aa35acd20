// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import "reflect"

// openService resolves a (name, pattern, type) triple on the node's
// transport, creating the channel or opening an existing compatible one.
// The pattern is fixed at creation: a same-named channel with another
// pattern, payload type, or stricter limits than requested fails with
// ServiceCreationFailed.
func openService(n *Node, name string, pattern Pattern, cfg StaticConfig, payload reflect.Type) (*channel, error) {
	if n == nil || n.closed {
		panic("memq: open service on closed node")
	}
	if name == "" {
		return nil, failf(ServiceCreationFailed, "empty service name")
	}
	return n.transport.openOrCreate(channelRequest{
		name:    name,
		pattern: pattern,
		cfg:     cfg,
		payload: payload,
		node:    n.id,
	})
}

// typeOf returns the payload type tag recorded with a channel.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// BlackboardService is a named blackboard channel. The pattern participates
// in open_or_create and discovery; reader/writer endpoints are a future
// revision.
type BlackboardService struct {
	node   *Node
	ch     *channel
	closed bool
}

// OpenBlackboard creates or opens a blackboard service.
func OpenBlackboard(n *Node, name string, cfg BlackboardConfig) (*BlackboardService, error) {
	ch, err := openService(n, name, PatternBlackboard, cfg, nil)
	if err != nil {
		return nil, err
	}
	return &BlackboardService{node: n, ch: ch}, nil
}

// Name returns the service name.
func (s *BlackboardService) Name() string { return s.ch.name }

// Config returns the recorded static configuration.
func (s *BlackboardService) Config() BlackboardConfig { return s.ch.cfg.(BlackboardConfig) }

// Close releases the service handle.
func (s *BlackboardService) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ch.release(s.node.id)
}
