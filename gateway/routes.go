package gateway

import "net/http"

// routeDescriptor binds one HTTP endpoint to its handler and documents it. The same table drives router
// registration, the Allow header on method mismatches and the published API document, so none of them can drift
// apart.
type routeDescriptor struct {
	name    string
	method  string
	path    string
	summary string
	handler func(*Gateway, http.ResponseWriter, *http.Request)
}

// routeTable returns the full API surface. Order is the order of the published document.
func routeTable() []routeDescriptor {
	return []routeDescriptor{
		{"submit-event-request", http.MethodPost, "/event-requests", "Submit a signed event request to the ledger", (*Gateway).submitEventHandler},
		{"get-event-request", http.MethodGet, "/event-requests/{request-id}", "Get a submitted event request", (*Gateway).eventRequestHandler},
		{"get-request-state", http.MethodGet, "/event-requests/{request-id}/state", "Get the processing state of an event request", (*Gateway).requestStateHandler},
		{"get-approvals", http.MethodGet, "/approval-requests", "List approval requests, optionally filtered by status", (*Gateway).approvalsHandler},
		{"get-approval", http.MethodGet, "/approval-requests/{id}", "Get one approval request", (*Gateway).approvalHandler},
		{"vote-approval", http.MethodPatch, "/approval-requests/{id}", "Emit a vote on a pending approval request", (*Gateway).approvalVoteHandler},
		{"get-allowed-subjects", http.MethodGet, "/allowed-subjects", "List pre-authorized subjects", (*Gateway).allowedSubjectsHandler},
		{"authorize-subject", http.MethodPut, "/allowed-subjects/{subject-id}", "Pre-authorize a subject and its providers", (*Gateway).authorizeSubjectHandler},
		{"generate-keys", http.MethodGet, "/generate-keys", "Register a keypair for a future subject", (*Gateway).generateKeysHandler},
		{"get-subjects", http.MethodGet, "/subjects", "List subjects, optionally filtered by type and governance", (*Gateway).subjectsHandler},
		{"get-subject", http.MethodGet, "/subjects/{subject-id}", "Get the current state of a subject", (*Gateway).subjectHandler},
		{"get-validation", http.MethodGet, "/subjects/{subject-id}/validation", "Get the validation proof of a subject", (*Gateway).validationHandler},
		{"get-events", http.MethodGet, "/subjects/{subject-id}/events", "List the events of a subject", (*Gateway).eventsHandler},
		{"get-event", http.MethodGet, "/subjects/{subject-id}/events/{sn}", "Get one event of a subject by sequence number", (*Gateway).eventHandler},
		{"get-controller-id", http.MethodGet, "/controller-id", "Get the node controller identifier", (*Gateway).controllerIDHandler},
		{"get-peer-id", http.MethodGet, "/peer-id", "Get the node peer-to-peer identifier", (*Gateway).peerIDHandler},
		{"get-subscriptions", http.MethodGet, "/subscriptions", "List active subject subscriptions", (*Gateway).subscriptionsHandler},
		{"subscribe-subject", http.MethodGet, "/subscriptions/{subject-id}", "Stream state changes of a subject over a websocket", (*Gateway).subscribeHandler},
	}
}
