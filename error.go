// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memq

import (
	"fmt"

	"code.hybscloud.com/iox"
)

// FailureKind classifies every expected failure mode of the messaging core.
// Absence of data (empty receive, timed-out wait) is never a failure;
// polling operations report it as a present-but-empty result instead.
type FailureKind uint8

const (
	// InternalError is an unexpected transport-level fault.
	InternalError FailureKind = iota
	// InsufficientPermissions rejects an operation the caller may not perform.
	InsufficientPermissions
	// Interrupt reports an enumeration cut short by an OS signal.
	Interrupt

	// NodeCreationFailed rejects node construction.
	NodeCreationFailed
	// ServiceCreationFailed rejects open_or_create: incompatible pattern,
	// incompatible payload type, or configuration beyond a platform limit.
	ServiceCreationFailed
	// PublisherCreationFailed reports publisher capacity exhaustion.
	PublisherCreationFailed
	// SubscriberCreationFailed reports subscriber capacity exhaustion.
	SubscriberCreationFailed
	// NotifierCreationFailed reports notifier capacity exhaustion.
	NotifierCreationFailed
	// ListenerCreationFailed reports listener capacity exhaustion.
	ListenerCreationFailed
	// ClientCreationFailed reports client capacity exhaustion.
	ClientCreationFailed
	// ServerCreationFailed reports server capacity exhaustion.
	ServerCreationFailed
	// WaitSetCreationFailed rejects waitset construction.
	WaitSetCreationFailed

	// SampleLoanFailed reports an exhausted publisher slot pool.
	SampleLoanFailed
	// RequestLoanFailed reports an exhausted client request pool.
	RequestLoanFailed
	// ResponseLoanFailed reports an exhausted server response pool.
	ResponseLoanFailed
	// SendFailed reports a failed publish, e.g. a full non-overflowing queue.
	SendFailed
	// RequestSendFailed reports a failed request delivery.
	RequestSendFailed
	// ResponseSendFailed reports a failed response delivery.
	ResponseSendFailed
	// ReceiveFailed reports a transport-level receive fault.
	ReceiveFailed
	// ResponseReceiveFailed reports a transport-level response receive fault,
	// including exceeding the configured borrowed-response bound.
	ResponseReceiveFailed
	// NotifyFailed reports a rejected notification; the Failure carries the
	// offending EventID.
	NotifyFailed
	// WaitFailed reports a transport or signal fault during an event wait.
	WaitFailed

	// WaitSetAttachmentFailed reports a duplicate or over-capacity attachment.
	WaitSetAttachmentFailed
	// WaitSetRunFailed reports a transport or signal fault in the wait loop.
	WaitSetRunFailed
)

// kindNames indexes FailureKind for diagnostics.
var kindNames = [...]string{
	InternalError:            "internal error",
	InsufficientPermissions:  "insufficient permissions",
	Interrupt:                "interrupt",
	NodeCreationFailed:       "node creation failed",
	ServiceCreationFailed:    "service creation failed",
	PublisherCreationFailed:  "publisher creation failed",
	SubscriberCreationFailed: "subscriber creation failed",
	NotifierCreationFailed:   "notifier creation failed",
	ListenerCreationFailed:   "listener creation failed",
	ClientCreationFailed:     "client creation failed",
	ServerCreationFailed:     "server creation failed",
	WaitSetCreationFailed:    "waitset creation failed",
	SampleLoanFailed:         "sample loan failed",
	RequestLoanFailed:        "request loan failed",
	ResponseLoanFailed:       "response loan failed",
	SendFailed:               "send failed",
	RequestSendFailed:        "request send failed",
	ResponseSendFailed:       "response send failed",
	ReceiveFailed:            "receive failed",
	ResponseReceiveFailed:    "response receive failed",
	NotifyFailed:             "notify failed",
	WaitFailed:               "wait failed",
	WaitSetAttachmentFailed:  "waitset attachment failed",
	WaitSetRunFailed:         "waitset run failed",
}

// String returns the human-readable name of the failure kind.
func (k FailureKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("failure(%d)", k)
}

// Failure is the tagged result every fallible operation returns on error.
// Kind carries the taxonomy tag, Detail optional human-readable context.
// Failures caused by a full or empty bounded queue wrap
// [code.hybscloud.com/iox.ErrWouldBlock], so callers and the cooperative
// bridge classify retryable conditions with errors.Is.
type Failure struct {
	Kind    FailureKind
	Detail  string
	EventID EventID // offending id for NotifyFailed, zero otherwise
	Err     error   // underlying cause, nil when the Failure is the root
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Detail == "" {
		return "memq: " + f.Kind.String()
	}
	return "memq: " + f.Kind.String() + ": " + f.Detail
}

// Is matches any *Failure of the same kind, so
// errors.Is(err, &Failure{Kind: SendFailed}) classifies by taxonomy tag.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind
}

// Unwrap exposes the underlying cause for errors.Is chains,
// notably iox.ErrWouldBlock on full/empty queue conditions.
func (f *Failure) Unwrap() error {
	return f.Err
}

// failf constructs a root Failure with formatted detail.
func failf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// wouldBlock constructs a retryable Failure wrapping iox.ErrWouldBlock.
func wouldBlock(kind FailureKind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: iox.ErrWouldBlock}
}
