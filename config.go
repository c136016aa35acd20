// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

// Pattern is the communication discipline a service is fixed to at creation.
type Pattern uint8

const (
	// PatternPublishSubscribe moves payload slots from publishers to subscribers.
	PatternPublishSubscribe Pattern = iota
	// PatternEvent moves bounded integer event ids from notifiers to listeners.
	PatternEvent
	// PatternRequestResponse correlates request slots with response slots.
	PatternRequestResponse
	// PatternBlackboard is a keyed shared state pattern (config and discovery only).
	PatternBlackboard
)

// String returns the pattern tag used in discovery output.
func (p Pattern) String() string {
	switch p {
	case PatternPublishSubscribe:
		return "publish-subscribe"
	case PatternEvent:
		return "event"
	case PatternRequestResponse:
		return "request-response"
	case PatternBlackboard:
		return "blackboard"
	}
	return "unknown"
}

// Hard platform limits. Configuration beyond these is rejected at
// open_or_create with ServiceCreationFailed.
const (
	platformMaxEndpoints  = 1024
	platformMaxBufferSize = 4096
	platformMaxEventID    = EventID(32767)
	platformMaxLoans      = 1024
)

// StaticConfig is the tagged variant over the four pattern configurations.
// A service records exactly one concrete configuration at creation; opening
// an existing service must present the same pattern.
type StaticConfig interface {
	// ServicePattern reports the variant tag.
	ServicePattern() Pattern
	// validate checks hard platform limits after defaults are applied.
	validate() error
	// compatibleWith reports whether a caller-requested configuration can
	// open a service recorded with this configuration. Zero-valued request
	// fields mean "accept existing"; non-zero limits must not exceed the
	// recorded ones.
	compatibleWith(requested StaticConfig) bool
}

// EventConfig is the static configuration of an event service.
type EventConfig struct {
	MaxNotifiers uint32
	MaxListeners uint32
	MaxNodes     uint32
	// MaxEventID bounds notifier-chosen ids; Notify with a larger id fails.
	MaxEventID EventID
	// Reserved lifecycle ids auto-fire on endpoint lifecycle transitions
	// when non-nil. Delivery is at-least-once: consumers must treat
	// duplicates as idempotent.
	NotifierCreatedEvent *EventID
	NotifierDroppedEvent *EventID
	NotifierDeadEvent    *EventID
}

// DefaultEventConfig returns the event configuration used for zero fields.
func DefaultEventConfig() EventConfig {
	return EventConfig{
		MaxNotifiers: 16,
		MaxListeners: 16,
		MaxNodes:     32,
		MaxEventID:   255,
	}
}

// ServicePattern implements StaticConfig.
func (EventConfig) ServicePattern() Pattern { return PatternEvent }

func (c EventConfig) withDefaults() EventConfig {
	d := DefaultEventConfig()
	if c.MaxNotifiers == 0 {
		c.MaxNotifiers = d.MaxNotifiers
	}
	if c.MaxListeners == 0 {
		c.MaxListeners = d.MaxListeners
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.MaxEventID == 0 {
		c.MaxEventID = d.MaxEventID
	}
	return c
}

func (c EventConfig) validate() error {
	if c.MaxNotifiers > platformMaxEndpoints || c.MaxListeners > platformMaxEndpoints ||
		c.MaxNodes > platformMaxEndpoints {
		return failf(ServiceCreationFailed, "event endpoint limit exceeds platform maximum %d", platformMaxEndpoints)
	}
	if c.MaxEventID > platformMaxEventID {
		return failf(ServiceCreationFailed, "max event id %d exceeds platform maximum %d", c.MaxEventID, platformMaxEventID)
	}
	for _, id := range []*EventID{c.NotifierCreatedEvent, c.NotifierDroppedEvent, c.NotifierDeadEvent} {
		if id != nil && *id > c.MaxEventID {
			return failf(ServiceCreationFailed, "reserved lifecycle id %d exceeds max event id %d", *id, c.MaxEventID)
		}
	}
	return nil
}

func (c EventConfig) compatibleWith(requested StaticConfig) bool {
	r, ok := requested.(EventConfig)
	if !ok {
		return false
	}
	return fits(r.MaxNotifiers, c.MaxNotifiers) && fits(r.MaxListeners, c.MaxListeners) &&
		fits(r.MaxNodes, c.MaxNodes) && fits(uint32(r.MaxEventID), uint32(c.MaxEventID))
}

// PubSubConfig is the static configuration of a publish-subscribe service.
type PubSubConfig struct {
	MaxPublishers  uint32
	MaxSubscribers uint32
	MaxNodes       uint32
	// HistorySize is the number of most recent samples replayed to a
	// subscriber at connect time.
	HistorySize uint32
	// SubscriberBufferSize bounds each publisher→subscriber queue.
	SubscriberBufferSize uint32
	// MaxLoanedSamples bounds concurrently loaned, unsent samples per publisher.
	MaxLoanedSamples uint32
	// SafeOverflow selects the overflow policy: when true a full subscriber
	// queue silently drops its oldest sample to admit the new one and
	// publishers never block; when false publishing to a full queue fails.
	SafeOverflow bool
}

// DefaultPubSubConfig returns the publish-subscribe configuration used for
// zero fields. SafeOverflow defaults to true.
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		MaxPublishers:        8,
		MaxSubscribers:       8,
		MaxNodes:             32,
		SubscriberBufferSize: 8,
		MaxLoanedSamples:     4,
		SafeOverflow:         true,
	}
}

// ServicePattern implements StaticConfig.
func (PubSubConfig) ServicePattern() Pattern { return PatternPublishSubscribe }

func (c PubSubConfig) withDefaults() PubSubConfig {
	d := DefaultPubSubConfig()
	if c.MaxPublishers == 0 {
		c.MaxPublishers = d.MaxPublishers
	}
	if c.MaxSubscribers == 0 {
		c.MaxSubscribers = d.MaxSubscribers
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.SubscriberBufferSize == 0 {
		c.SubscriberBufferSize = d.SubscriberBufferSize
	}
	if c.MaxLoanedSamples == 0 {
		c.MaxLoanedSamples = d.MaxLoanedSamples
	}
	return c
}

func (c PubSubConfig) validate() error {
	if c.MaxPublishers > platformMaxEndpoints || c.MaxSubscribers > platformMaxEndpoints ||
		c.MaxNodes > platformMaxEndpoints {
		return failf(ServiceCreationFailed, "pub/sub endpoint limit exceeds platform maximum %d", platformMaxEndpoints)
	}
	if c.SubscriberBufferSize > platformMaxBufferSize || c.HistorySize > platformMaxBufferSize {
		return failf(ServiceCreationFailed, "buffer size exceeds platform maximum %d", platformMaxBufferSize)
	}
	if c.MaxLoanedSamples > platformMaxLoans {
		return failf(ServiceCreationFailed, "max loaned samples exceeds platform maximum %d", platformMaxLoans)
	}
	return nil
}

func (c PubSubConfig) compatibleWith(requested StaticConfig) bool {
	r, ok := requested.(PubSubConfig)
	if !ok {
		return false
	}
	return fits(r.MaxPublishers, c.MaxPublishers) && fits(r.MaxSubscribers, c.MaxSubscribers) &&
		fits(r.MaxNodes, c.MaxNodes) && fits(r.HistorySize, c.HistorySize) &&
		fits(r.SubscriberBufferSize, c.SubscriberBufferSize) &&
		fits(r.MaxLoanedSamples, c.MaxLoanedSamples)
}

// RequestResponseConfig is the static configuration of a request-response
// service.
type RequestResponseConfig struct {
	MaxServers uint32
	MaxClients uint32
	MaxNodes   uint32
	// MaxActiveRequestsPerClient bounds requests with a live PendingResponse.
	MaxActiveRequestsPerClient uint32
	// MaxLoanedRequests bounds concurrently loaned, unsent requests per client.
	MaxLoanedRequests uint32
	// ResponseBufferSize bounds each pending response queue.
	ResponseBufferSize uint32
	// MaxBorrowedResponsesPerPendingResponse bounds concurrently borrowed
	// received responses per pending response.
	MaxBorrowedResponsesPerPendingResponse uint32
	// SafeOverflowRequests and SafeOverflowResponses select the overflow
	// policy independently for each direction.
	SafeOverflowRequests  bool
	SafeOverflowResponses bool
	// FireAndForget sends requests without tracking responses; servers must
	// tolerate requests for which no response is expected.
	FireAndForget bool
}

// DefaultRequestResponseConfig returns the request-response configuration
// used for zero fields.
func DefaultRequestResponseConfig() RequestResponseConfig {
	return RequestResponseConfig{
		MaxServers:                             2,
		MaxClients:                             8,
		MaxNodes:                               32,
		MaxActiveRequestsPerClient:             4,
		MaxLoanedRequests:                      2,
		ResponseBufferSize:                     4,
		MaxBorrowedResponsesPerPendingResponse: 4,
	}
}

// ServicePattern implements StaticConfig.
func (RequestResponseConfig) ServicePattern() Pattern { return PatternRequestResponse }

func (c RequestResponseConfig) withDefaults() RequestResponseConfig {
	d := DefaultRequestResponseConfig()
	if c.MaxServers == 0 {
		c.MaxServers = d.MaxServers
	}
	if c.MaxClients == 0 {
		c.MaxClients = d.MaxClients
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.MaxActiveRequestsPerClient == 0 {
		c.MaxActiveRequestsPerClient = d.MaxActiveRequestsPerClient
	}
	if c.MaxLoanedRequests == 0 {
		c.MaxLoanedRequests = d.MaxLoanedRequests
	}
	if c.ResponseBufferSize == 0 {
		c.ResponseBufferSize = d.ResponseBufferSize
	}
	if c.MaxBorrowedResponsesPerPendingResponse == 0 {
		c.MaxBorrowedResponsesPerPendingResponse = d.MaxBorrowedResponsesPerPendingResponse
	}
	return c
}

func (c RequestResponseConfig) validate() error {
	if c.MaxServers > platformMaxEndpoints || c.MaxClients > platformMaxEndpoints ||
		c.MaxNodes > platformMaxEndpoints {
		return failf(ServiceCreationFailed, "request-response endpoint limit exceeds platform maximum %d", platformMaxEndpoints)
	}
	if c.ResponseBufferSize > platformMaxBufferSize {
		return failf(ServiceCreationFailed, "response buffer size exceeds platform maximum %d", platformMaxBufferSize)
	}
	if c.MaxLoanedRequests > platformMaxLoans || c.MaxActiveRequestsPerClient > platformMaxLoans ||
		c.MaxBorrowedResponsesPerPendingResponse > platformMaxLoans {
		return failf(ServiceCreationFailed, "request bound exceeds platform maximum %d", platformMaxLoans)
	}
	return nil
}

func (c RequestResponseConfig) compatibleWith(requested StaticConfig) bool {
	r, ok := requested.(RequestResponseConfig)
	if !ok {
		return false
	}
	return fits(r.MaxServers, c.MaxServers) && fits(r.MaxClients, c.MaxClients) &&
		fits(r.MaxNodes, c.MaxNodes) &&
		fits(r.MaxActiveRequestsPerClient, c.MaxActiveRequestsPerClient) &&
		fits(r.MaxLoanedRequests, c.MaxLoanedRequests) &&
		fits(r.ResponseBufferSize, c.ResponseBufferSize) &&
		fits(r.MaxBorrowedResponsesPerPendingResponse, c.MaxBorrowedResponsesPerPendingResponse)
}

// BlackboardConfig is the static configuration of a blackboard service.
// The pattern participates in open_or_create and discovery; reader and
// writer endpoints are not part of the current endpoint set.
type BlackboardConfig struct {
	MaxReaders uint32
	MaxWriters uint32
	MaxNodes   uint32
}

// DefaultBlackboardConfig returns the blackboard configuration used for
// zero fields.
func DefaultBlackboardConfig() BlackboardConfig {
	return BlackboardConfig{MaxReaders: 8, MaxWriters: 1, MaxNodes: 32}
}

// ServicePattern implements StaticConfig.
func (BlackboardConfig) ServicePattern() Pattern { return PatternBlackboard }

func (c BlackboardConfig) withDefaults() BlackboardConfig {
	d := DefaultBlackboardConfig()
	if c.MaxReaders == 0 {
		c.MaxReaders = d.MaxReaders
	}
	if c.MaxWriters == 0 {
		c.MaxWriters = d.MaxWriters
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = d.MaxNodes
	}
	return c
}

func (c BlackboardConfig) validate() error {
	if c.MaxReaders > platformMaxEndpoints || c.MaxWriters > platformMaxEndpoints ||
		c.MaxNodes > platformMaxEndpoints {
		return failf(ServiceCreationFailed, "blackboard endpoint limit exceeds platform maximum %d", platformMaxEndpoints)
	}
	return nil
}

func (c BlackboardConfig) compatibleWith(requested StaticConfig) bool {
	r, ok := requested.(BlackboardConfig)
	if !ok {
		return false
	}
	return fits(r.MaxReaders, c.MaxReaders) && fits(r.MaxWriters, c.MaxWriters) &&
		fits(r.MaxNodes, c.MaxNodes)
}

// fits reports whether a requested limit is satisfiable by a recorded one.
// Zero means the caller accepts whatever the service was created with.
func fits(requested, recorded uint32) bool {
	return requested == 0 || requested <= recorded
}
