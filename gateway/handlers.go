package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kore-ledger/kore-gateway/lib/bridge"
)

// maxBody bounds submission payloads. Signed governance events are small documents.
const maxBody = 1 << 20

// Errors returned to client requests.
const (
	errBadRequest = "bad request"
	errInternal   = "internal error"
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

// statusOf maps a node bridge failure onto its HTTP status.
func statusOf(err error) int {
	switch bridge.KindOf(err) {
	case bridge.KindValidation:
		return http.StatusBadRequest
	case bridge.KindDuplicate:
		return http.StatusConflict
	case bridge.KindNotFound:
		return http.StatusNotFound
	case bridge.KindUnavailable:
		return http.StatusServiceUnavailable
	case bridge.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// replyBody writes a successful envelope.
func (g *Gateway) replyBody(rw http.ResponseWriter, r *http.Request, status int, body json.RawMessage) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(Response{Body: body})
}

// replyError writes a failure envelope.
func (g *Gateway) replyError(rw http.ResponseWriter, r *http.Request, status int, message string) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(Response{Error: message})
}

// replyFailure classifies a bridge failure and writes it. Internal failures are logged in full but never shown to
// the client.
func (g *Gateway) replyFailure(rw http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("uri", r.RequestURI).Error("request failed")
		message = errInternal
	}

	g.replyError(rw, r, status, message)
}

// opCtx derives the node-operation context: the client's context bounded by the configured gateway deadline.
func (g *Gateway) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), g.timeout)
}

// query runs one query-state operation and relays the node document verbatim. Identical queries yield identical
// bodies, so every GET below is idempotent.
func (g *Gateway) query(rw http.ResponseWriter, r *http.Request, q bridge.StateQuery) {
	ctx, cancel := g.opCtx(r)
	defer cancel()

	raw, err := g.node.QueryState(ctx, q)
	if err != nil {
		g.replyFailure(rw, r, err)
		return
	}

	g.replyBody(rw, r, http.StatusOK, raw)
}

// submit runs one submit-event operation and relays its receipt.
func (g *Gateway) submit(rw http.ResponseWriter, r *http.Request, sub bridge.EventSubmission) {
	ctx, cancel := g.opCtx(r)
	defer cancel()

	rec, err := g.node.SubmitEvent(ctx, sub)
	if err != nil {
		g.replyFailure(rw, r, err)
		return
	}

	body, _ := json.Marshal(rec)
	g.replyBody(rw, r, http.StatusOK, body)
}

// readBody reads and syntax-checks a JSON request body. A malformed body is rejected before any node operation is
// created.
func readBody(rw http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, maxBody))
	if err != nil {
		return nil, false
	}
	if len(body) > 0 && !json.Valid(body) {
		return nil, false
	}
	return body, true
}

// queryParams collects the given query string keys into bridge params, dropping empty ones.
func queryParams(r *http.Request, keys ...string) map[string]string {
	q := r.URL.Query()

	params := map[string]string{}
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			params[k] = v
		}
	}

	if len(params) == 0 {
		return nil
	}
	return params
}

// submitEventHandler accepts a signed event request and forwards it to the ledger.
func (g *Gateway) submitEventHandler(rw http.ResponseWriter, r *http.Request) {
	body, ok := readBody(rw, r)
	if !ok {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}

	var req bridge.SignedEventRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Request) == 0 {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}

	g.submit(rw, r, bridge.EventSubmission{Kind: bridge.SubmitEventRequest, Payload: body})
}

// eventRequestHandler returns a submitted event request.
func (g *Gateway) eventRequestHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceEventRequest, ID: mux.Vars(r)["request-id"]})
}

// requestStateHandler returns the processing state of an event request.
func (g *Gateway) requestStateHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceRequestState, ID: mux.Vars(r)["request-id"]})
}

// approvalsHandler lists approval requests, optionally filtered by status.
func (g *Gateway) approvalsHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{
		Resource: bridge.ResourceApprovals,
		Params:   queryParams(r, "status", "from", "quantity"),
	})
}

// approvalHandler returns one approval request.
func (g *Gateway) approvalHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceApproval, ID: mux.Vars(r)["id"]})
}

// approvalVoteHandler emits a vote on a pending approval request.
func (g *Gateway) approvalVoteHandler(rw http.ResponseWriter, r *http.Request) {
	body, ok := readBody(rw, r)
	if !ok {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}

	var vote struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &vote); err != nil || vote.State == "" {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}

	g.submit(rw, r, bridge.EventSubmission{
		Kind:     bridge.SubmitApprovalVote,
		TargetID: mux.Vars(r)["id"],
		Payload:  body,
	})
}

// allowedSubjectsHandler lists pre-authorized subjects.
func (g *Gateway) allowedSubjectsHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{
		Resource: bridge.ResourceAllowedSubjects,
		Params:   queryParams(r, "from", "quantity"),
	})
}

// authorizeSubjectHandler pre-authorizes a subject and its providers. The body is optional; without it the subject
// is authorized with no named providers.
func (g *Gateway) authorizeSubjectHandler(rw http.ResponseWriter, r *http.Request) {
	body, ok := readBody(rw, r)
	if !ok {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}

	g.submit(rw, r, bridge.EventSubmission{
		Kind:     bridge.SubmitAuthorization,
		TargetID: mux.Vars(r)["subject-id"],
		Payload:  body,
	})
}

// generateKeysHandler registers a keypair in the node for a future subject.
func (g *Gateway) generateKeysHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{
		Resource: bridge.ResourceKeys,
		Params:   queryParams(r, "algorithm"),
	})
}

// subjectsHandler lists subjects, optionally filtered by type and governance.
func (g *Gateway) subjectsHandler(rw http.ResponseWriter, r *http.Request) {
	q := bridge.SubjectQuery{
		SubjectType:  r.URL.Query().Get("subject_type"),
		GovernanceID: r.URL.Query().Get("governanceid"),
		From:         r.URL.Query().Get("from"),
	}

	if s := r.URL.Query().Get("quantity"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
			return
		}
		q.Quantity = n
	}

	ctx, cancel := g.opCtx(r)
	defer cancel()

	subjects, err := g.node.ListSubjects(ctx, q)
	if err != nil {
		g.replyFailure(rw, r, err)
		return
	}

	body, _ := json.Marshal(subjects)
	g.replyBody(rw, r, http.StatusOK, body)
}

// subjectHandler returns the current state of a subject.
func (g *Gateway) subjectHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceSubject, ID: mux.Vars(r)["subject-id"]})
}

// validationHandler returns the validation proof of a subject.
func (g *Gateway) validationHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceValidation, ID: mux.Vars(r)["subject-id"]})
}

// eventsHandler lists the events of a subject.
func (g *Gateway) eventsHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{
		Resource: bridge.ResourceEvents,
		ID:       mux.Vars(r)["subject-id"],
		Params:   queryParams(r, "from", "quantity"),
	})
}

// eventHandler returns one event of a subject by sequence number.
func (g *Gateway) eventHandler(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if _, err := strconv.ParseUint(vars["sn"], 10, 64); err != nil {
		g.replyError(rw, r, http.StatusBadRequest, errBadRequest)
		return
	}

	g.query(rw, r, bridge.StateQuery{
		Resource: bridge.ResourceEvent,
		ID:       vars["subject-id"],
		Params:   map[string]string{"sn": vars["sn"]},
	})
}

// controllerIDHandler returns the node controller identifier.
func (g *Gateway) controllerIDHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourceControllerID})
}

// peerIDHandler returns the node peer-to-peer identifier.
func (g *Gateway) peerIDHandler(rw http.ResponseWriter, r *http.Request) {
	g.query(rw, r, bridge.StateQuery{Resource: bridge.ResourcePeerID})
}
