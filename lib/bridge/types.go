package bridge

import "encoding/json"

// SubmissionKind tells the node what kind of governance submission it is receiving.
type SubmissionKind string

// Submission kinds accepted by the node.
const (
	SubmitEventRequest  SubmissionKind = "event-request"  // signed fact/create/transfer/eol request
	SubmitApprovalVote  SubmissionKind = "approval-vote"  // vote on a pending approval request
	SubmitAuthorization SubmissionKind = "authorization"  // pre-authorize a subject and its providers
)

// EventSubmission is the payload of one submit-event operation. The submission is owned by the handler that built it
// until it is handed to the Client; afterwards the in-flight operation belongs to the Client until completion or
// cancellation.
type EventSubmission struct {
	Kind     SubmissionKind  `json:"kind"`
	TargetID string          `json:"target_id,omitempty"` // approval id or subject id, depending on Kind
	Payload  json.RawMessage `json:"payload"`
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	RequestID string `json:"request_id"`
	SubjectID string `json:"subject_id,omitempty"`
}

// Resource names a queryable piece of node or ledger state.
type Resource string

// Resources reachable through query-state.
const (
	ResourceEventRequest    Resource = "event-request"
	ResourceRequestState    Resource = "request-state"
	ResourceApprovals       Resource = "approvals"
	ResourceApproval        Resource = "approval"
	ResourceAllowedSubjects Resource = "allowed-subjects"
	ResourceKeys            Resource = "keys"
	ResourceSubject         Resource = "subject"
	ResourceValidation      Resource = "validation"
	ResourceEvents          Resource = "events"
	ResourceEvent           Resource = "event"
	ResourceControllerID    Resource = "controller-id"
	ResourcePeerID          Resource = "peer-id"
)

// StateQuery identifies one resource plus optional filter/pagination parameters.
type StateQuery struct {
	Resource Resource          `json:"resource"`
	ID       string            `json:"id,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// SubjectQuery carries the filters of a list-subjects operation.
type SubjectQuery struct {
	SubjectType  string `json:"subject_type,omitempty"` // all | governances
	GovernanceID string `json:"governance_id,omitempty"`
	From         string `json:"from,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
}

// Signature is the detached signature attached to event requests and node replies.
type Signature struct {
	Signer      string `json:"signer"`
	Timestamp   uint64 `json:"timestamp"`
	Value       string `json:"value"`
	ContentHash string `json:"content_hash"`
}

// SignedEventRequest is the document clients POST to submit a governance event. Request content is opaque to the
// gateway; the node evaluates it.
type SignedEventRequest struct {
	Request   json.RawMessage `json:"request"`
	Signature *Signature      `json:"signature,omitempty"`
}

// SubjectData is one subject as reported by the node.
type SubjectData struct {
	SubjectID    string          `json:"subject_id"`
	GovernanceID string          `json:"governance_id"`
	Sn           uint64          `json:"sn"`
	PublicKey    string          `json:"public_key"`
	Namespace    string          `json:"namespace"`
	Name         string          `json:"name"`
	SchemaID     string          `json:"schema_id"`
	Owner        string          `json:"owner"`
	Creator      string          `json:"creator"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Active       bool            `json:"active"`
}

// Notification is one state change pushed by the node for a subscribed subject.
type Notification struct {
	SubjectID string          `json:"subject_id"`
	Sn        uint64          `json:"sn"`
	Timestamp int64           `json:"timestamp"`
	State     json.RawMessage `json:"state,omitempty"`
}
