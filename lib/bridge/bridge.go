// Package bridge defines the interface the gateway uses to reach a Kore node. The node itself (consensus,
// cryptographic identity, governance state machine, storage engines) is an external collaborator; this layer only
// shapes operations towards it and failures back from it.
//
// The interface exposes exactly four operation kinds: submit-event, query-state, list-subjects and subscribe. Each
// call is bound to a context; cancelling the context releases the in-flight operation. Implementations must be safe
// for concurrent use and must never retry a submission on their own, so an event reaches the ledger at most once per
// call.
package bridge

import (
	"context"
	"encoding/json"
)

// Client is the single abstraction the gateway uses to reach the node.
type Client interface {
	// Setup declares whatever transport topology the implementation needs. Called once before serving.
	Setup() error
	// Close releases the connection to the node. In-flight operations fail with an unavailable error.
	Close() error

	// SubmitEvent forwards one signed submission to the node and returns its receipt. At most one submission is
	// sent per call; retrying is the caller's decision.
	SubmitEvent(ctx context.Context, sub EventSubmission) (Receipt, error)
	// QueryState fetches the state of one ledger resource. The payload is returned verbatim so identical queries
	// yield identical bytes.
	QueryState(ctx context.Context, q StateQuery) (json.RawMessage, error)
	// ListSubjects returns the page of subjects matching the query filters.
	ListSubjects(ctx context.Context, q SubjectQuery) ([]SubjectData, error)
	// Subscribe opens a notification stream for a subject. The stream ends when ctx is cancelled or the node
	// closes it.
	Subscribe(ctx context.Context, subjectID string) (*Subscription, error)
}

// Subscription is a live stream of state change notifications for one subject. Notifications stop and C is closed
// once the subscription is released, either by Close, by cancellation of the context it was opened with, or by the
// node ending the stream.
type Subscription struct {
	SubjectID string
	C         <-chan Notification

	cancel func() error
}

// NewSubscription wraps a notification channel and its release function. Used by implementations.
func NewSubscription(subjectID string, c <-chan Notification, cancel func() error) *Subscription {
	return &Subscription{SubjectID: subjectID, C: c, cancel: cancel}
}

// Close releases the subscription. Safe to call after the stream already ended.
func (s *Subscription) Close() error {
	if s.cancel == nil {
		return nil
	}
	return s.cancel()
}
