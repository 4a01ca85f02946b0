package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kore-ledger/kore-gateway/lib/bridge"
	"github.com/kore-ledger/kore-gateway/lib/config"
	"github.com/kore-ledger/kore-gateway/lib/store"
)

// fakeNode implements bridge.Client for handler tests.
type fakeNode struct {
	submitFn    func(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error)
	queryFn     func(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error)
	listFn      func(ctx context.Context, q bridge.SubjectQuery) ([]bridge.SubjectData, error)
	subscribeFn func(ctx context.Context, subjectID string) (*bridge.Subscription, error)
}

func (f *fakeNode) Setup() error { return nil }
func (f *fakeNode) Close() error { return nil }

func (f *fakeNode) SubmitEvent(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
	if f.submitFn == nil {
		return bridge.Receipt{RequestID: "req-1"}, nil
	}
	return f.submitFn(ctx, sub)
}

func (f *fakeNode) QueryState(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
	if f.queryFn == nil {
		return json.RawMessage(`{}`), nil
	}
	return f.queryFn(ctx, q)
}

func (f *fakeNode) ListSubjects(ctx context.Context, q bridge.SubjectQuery) ([]bridge.SubjectData, error) {
	if f.listFn == nil {
		return []bridge.SubjectData{}, nil
	}
	return f.listFn(ctx, q)
}

func (f *fakeNode) Subscribe(ctx context.Context, subjectID string) (*bridge.Subscription, error) {
	if f.subscribeFn == nil {
		return nil, bridge.NewError(bridge.KindUnavailable, "no fake stream")
	}
	return f.subscribeFn(ctx, subjectID)
}

// fakeRegistry implements store.DB in memory.
type fakeRegistry struct {
	mu     sync.Mutex
	subs   []store.Subscription
	addErr error
}

func (f *fakeRegistry) AddSubscription(s store.Subscription) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return nil, f.addErr
	}
	f.subs = append(f.subs, s)
	return []byte{0x01}, nil
}

func (f *fakeRegistry) RemoveSubscription(subjectID, consumer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.subs {
		if s.SubjectID == subjectID && s.Consumer == consumer {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return nil
		}
	}
	return store.ErrSubNotFound
}

func (f *fakeRegistry) GetSubscriptions() ([]store.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]store.Subscription{}, f.subs...), nil
}

func testGateway(node bridge.Client, db store.DB) *Gateway {
	cfg := config.ServiceConfig{
		Timeout:     1,
		CorsOrigins: []string{"*"},
		Docs:        true,
	}

	return New(cfg, node, "", db)
}

func doRequest(g *Gateway, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	g.handler().ServeHTTP(rec, req)

	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var res Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))

	return res
}

func TestSubmitEventRequest(t *testing.T) {
	var got bridge.EventSubmission

	node := &fakeNode{
		submitFn: func(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
			got = sub
			return bridge.Receipt{RequestID: "req-7", SubjectID: "sub-1"}, nil
		},
	}
	g := testGateway(node, nil)

	body := `{"request":{"Fact":{"subject_id":"sub-1","payload":{}}},"signature":{"signer":"k1","timestamp":1,"value":"s","content_hash":"h"}}`
	rec := doRequest(g, http.MethodPost, "/event-requests", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bridge.SubmitEventRequest, got.Kind)
	assert.JSONEq(t, body, string(got.Payload))

	res := decodeResponse(t, rec)
	assert.Contains(t, string(res.Body), "req-7")
}

func TestSubmitEventRequestMalformed(t *testing.T) {
	called := false
	node := &fakeNode{
		submitFn: func(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
			called = true
			return bridge.Receipt{}, nil
		},
	}
	g := testGateway(node, nil)

	for _, body := range []string{"", "{not json", `{"signature":{}}`} {
		rec := doRequest(g, http.MethodPost, "/event-requests", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	assert.False(t, called, "a malformed request must never reach the node")
}

func TestQueryPassthrough(t *testing.T) {
	doc := `{"subject_id":"sub-1","sn":4,"properties":{"temp":21}}`

	node := &fakeNode{
		queryFn: func(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
			assert.Equal(t, bridge.ResourceSubject, q.Resource)
			assert.Equal(t, "sub-1", q.ID)
			return json.RawMessage(doc), nil
		},
	}
	g := testGateway(node, nil)

	rec := doRequest(g, http.MethodGet, "/subjects/sub-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	firstBody := rec.Body.String()
	res := decodeResponse(t, rec)
	assert.Equal(t, doc, string(res.Body))

	// the same query yields the same bytes
	rec2 := doRequest(g, http.MethodGet, "/subjects/sub-1", "")
	assert.Equal(t, firstBody, rec2.Body.String())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", bridge.NewError(bridge.KindValidation, "bad event"), http.StatusBadRequest},
		{"duplicate", bridge.NewError(bridge.KindDuplicate, "already processed"), http.StatusConflict},
		{"not found", bridge.NewError(bridge.KindNotFound, "no such subject"), http.StatusNotFound},
		{"unavailable", bridge.NewError(bridge.KindUnavailable, "node down"), http.StatusServiceUnavailable},
		{"timeout", bridge.NewError(bridge.KindTimeout, "deadline"), http.StatusGatewayTimeout},
		{"internal", bridge.NewError(bridge.KindInternal, "node detail leaks here"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &fakeNode{
				queryFn: func(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
					return nil, tt.err
				},
			}
			g := testGateway(node, nil)

			rec := doRequest(g, http.MethodGet, "/controller-id", "")
			assert.Equal(t, tt.status, rec.Code)

			res := decodeResponse(t, rec)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, res.Error, "node detail", "internal failures must not leak")
			} else {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestDeadlineYieldsGatewayTimeout(t *testing.T) {
	node := &fakeNode{
		queryFn: func(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "node operations must carry the gateway deadline")

			<-ctx.Done()
			return nil, bridge.NewError(bridge.KindTimeout, "node did not answer within the deadline")
		},
	}
	g := testGateway(node, nil)
	g.timeout = 50 * time.Millisecond

	rec := doRequest(g, http.MethodGet, "/peer-id", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestApprovalVote(t *testing.T) {
	var got bridge.EventSubmission

	node := &fakeNode{
		submitFn: func(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
			got = sub
			return bridge.Receipt{RequestID: "req-2"}, nil
		},
	}
	g := testGateway(node, nil)

	rec := doRequest(g, http.MethodPatch, "/approval-requests/apr-1", `{"state":"RespondedAccepted"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bridge.SubmitApprovalVote, got.Kind)
	assert.Equal(t, "apr-1", got.TargetID)

	// a vote without a state is rejected before the node
	rec = doRequest(g, http.MethodPatch, "/approval-requests/apr-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizeSubject(t *testing.T) {
	var got bridge.EventSubmission

	node := &fakeNode{
		submitFn: func(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
			got = sub
			return bridge.Receipt{SubjectID: sub.TargetID}, nil
		},
	}
	g := testGateway(node, nil)

	rec := doRequest(g, http.MethodPut, "/allowed-subjects/sub-9", `{"providers":["p1"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bridge.SubmitAuthorization, got.Kind)
	assert.Equal(t, "sub-9", got.TargetID)

	// an empty body authorizes with no named providers
	rec = doRequest(g, http.MethodPut, "/allowed-subjects/sub-9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, string(got.Payload))
}

func TestListSubjects(t *testing.T) {
	var got bridge.SubjectQuery

	node := &fakeNode{
		listFn: func(ctx context.Context, q bridge.SubjectQuery) ([]bridge.SubjectData, error) {
			got = q
			return []bridge.SubjectData{{SubjectID: "sub-1", Sn: 2}}, nil
		},
	}
	g := testGateway(node, nil)

	rec := doRequest(g, http.MethodGet, "/subjects?subject_type=governances&governanceid=gov-1&from=sub-0&quantity=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, bridge.SubjectQuery{SubjectType: "governances", GovernanceID: "gov-1", From: "sub-0", Quantity: 10}, got)

	res := decodeResponse(t, rec)
	assert.Contains(t, string(res.Body), "sub-1")

	// a non-numeric quantity is a client error
	rec = doRequest(g, http.MethodGet, "/subjects?quantity=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventBySequence(t *testing.T) {
	node := &fakeNode{
		queryFn: func(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
			assert.Equal(t, bridge.ResourceEvent, q.Resource)
			assert.Equal(t, "5", q.Params["sn"])
			return json.RawMessage(`{"sn":5}`), nil
		},
	}
	g := testGateway(node, nil)

	rec := doRequest(g, http.MethodGet, "/subjects/sub-1/events/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(g, http.MethodGet, "/subjects/sub-1/events/five", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	g := testGateway(&fakeNode{}, nil)

	rec := doRequest(g, http.MethodGet, "/no-such-thing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	g := testGateway(&fakeNode{}, nil)

	rec := doRequest(g, http.MethodDelete, "/approval-requests/apr-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	allow := rec.Header().Get("Allow")
	assert.Contains(t, allow, http.MethodGet)
	assert.Contains(t, allow, http.MethodPatch)
	assert.NotContains(t, allow, http.MethodDelete)
}
