// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import "reflect"

// ChannelInfo is the discovery snapshot of one live channel: identity, name,
// pattern tag, and a copy of the pattern-specific static configuration.
type ChannelInfo struct {
	ID      uint32
	Name    string
	Pattern Pattern
	Config  StaticConfig
}

// channelRequest carries everything the transport needs to resolve a
// (name, pattern, type) triple into a channel.
type channelRequest struct {
	name    string
	pattern Pattern
	cfg     StaticConfig
	payload reflect.Type // nil for payload-free patterns (event, blackboard)
	node    uint32
}

// Transport is the narrow capability the core consumes from a shared-memory
// engine: resolve or create a named channel, drop a reference, and enumerate
// live channels with a visitor. Slot loan/publish/poll and event signaling
// happen on the channel's pattern plane, owned by the typed service layer.
//
// A production engine backs channels with shared-memory segments and
// cross-process synchronization; that engine is outside this core.
// [MemTransport] is the in-process reference engine.
type Transport interface {
	openOrCreate(req channelRequest) (*channel, error)
	// visit yields each live channel until the visitor returns false.
	visit(yield func(ChannelInfo) bool) error
}
