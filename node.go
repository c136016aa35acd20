// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"code.hybscloud.com/atomix"
)

// nodeSerial is the global monotonic counter for node identities.
var nodeSerial atomix.Uint32

// Node is the process-scoped entry point: it binds a transport engine,
// carries a process-unique identity, and opens services. A node owns no
// samples; closing it is a process-lifetime event, not a slot-level one —
// services opened through it keep their own transport references.
type Node struct {
	id        uint32
	name      string
	transport Transport
	closed    bool
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithNodeName assigns a human-readable node name.
func WithNodeName(name string) NodeOption {
	return func(n *Node) { n.name = name }
}

// WithTransport binds the node to a specific transport engine instead of
// the process-global one.
func WithTransport(t Transport) NodeOption {
	return func(n *Node) { n.transport = t }
}

// NewNode creates a process session against the transport.
func NewNode(opts ...NodeOption) (*Node, error) {
	n := &Node{id: nodeSerial.Add(1), transport: DefaultTransport()}
	for _, opt := range opts {
		opt(n)
	}
	if n.transport == nil {
		return nil, failf(NodeCreationFailed, "nil transport")
	}
	logger.Debug().Uint32("node", n.id).Str("name", n.name).Msg("node created")
	return n, nil
}

// ID returns the process-unique node identity.
func (n *Node) ID() uint32 { return n.id }

// Name returns the node name, empty unless set via WithNodeName.
func (n *Node) Name() string { return n.name }

// Close ends the process session. Services opened through the node stay
// valid until their own handles and endpoints are released.
func (n *Node) Close() {
	if n.closed {
		return
	}
	n.closed = true
	logger.Debug().Uint32("node", n.id).Msg("node closed")
}

// ServiceDetails is one entry of a service enumeration snapshot.
type ServiceDetails struct {
	ID      uint32
	Name    string
	Pattern Pattern
	Config  StaticConfig
}

// ListServices enumerates all live services on the node's transport as a
// point-in-time snapshot; there is no live subscription to topology changes.
// Fails with InsufficientPermissions, InternalError, or Interrupt.
//
// The transport's visitor enumeration is collected into a plain slice here,
// so two concurrent enumerations never share listing state.
func (n *Node) ListServices() ([]ServiceDetails, error) {
	if n.closed {
		panic("memq: ListServices on closed node")
	}
	var details []ServiceDetails
	err := n.transport.visit(func(info ChannelInfo) bool {
		details = append(details, ServiceDetails{
			ID:      info.ID,
			Name:    info.Name,
			Pattern: info.Pattern,
			Config:  info.Config,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}
