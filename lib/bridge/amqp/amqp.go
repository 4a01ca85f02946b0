// Package amqp implements the bridge interface over AMQP compliant brokers (ie RabbitMQ).
//
// Requests are published to the "kore.req" topic exchange and answered over a per-gateway exclusive reply queue,
// matched by correlation id. Subject notifications arrive on queues bound to the "kore.events" topic exchange. One
// connection is shared by all in-flight operations; each operation is tracked solely by its correlation id, so the
// client tolerates concurrent use from many request goroutines.
package amqp

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/kore-ledger/kore-gateway/lib/backend"
	"github.com/kore-ledger/kore-gateway/lib/bridge"
)

const (
	reqExchange   = "kore.req"    // gateway publishes operations here
	eventExchange = "kore.events" // node publishes subject state changes here

	backendHeader = "x-kore-backend" // lets a misconfigured node/gateway pair fail loudly
)

// request is the wire envelope of one bridge operation.
type request struct {
	Op         string                  `json:"op"`
	Submission *bridge.EventSubmission `json:"submission,omitempty"`
	Query      *bridge.StateQuery      `json:"query,omitempty"`
	Subjects   *bridge.SubjectQuery    `json:"subjects,omitempty"`
}

// envelope is the wire shape of a node reply: either a result document or a classified error, never both.
type envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Bridge implements bridge.Client over one AMQP connection.
type Bridge struct {
	conn   *amqp.Connection
	engine backend.Selection

	pubMu sync.Mutex // amqp channels are not safe for concurrent publication
	pub   *amqp.Channel

	replyQ string

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  bool
}

// New dials the broker and returns an unstarted bridge. Setup must be called before the first operation.
func New(uri string, engine backend.Selection) (*Bridge, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to node broker at %s", uri)
	}
	logrus.Debugf("bridge connected to %s", uri)

	return &Bridge{conn: conn, engine: engine, pending: make(map[string]chan []byte)}, nil
}

// Setup declares the request and event exchanges, opens the publishing channel and starts consuming the exclusive
// reply queue.
func (b *Bridge) Setup() error {
	setup, err := b.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "cannot open setup channel")
	}
	defer setup.Close()

	if err = setup.ExchangeDeclare(reqExchange, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "cannot declare exchange %s", reqExchange)
	}
	if err = setup.ExchangeDeclare(eventExchange, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "cannot declare exchange %s", eventExchange)
	}

	if b.pub, err = b.conn.Channel(); err != nil {
		return errors.Wrap(err, "cannot open publish channel")
	}

	rc, err := b.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "cannot open reply channel")
	}

	q, err := rc.QueueDeclare("", false, true, true, false, nil) // exclusive, auto-delete, broker-named
	if err != nil {
		return errors.Wrap(err, "cannot declare reply queue")
	}
	b.replyQ = q.Name

	replies, err := rc.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "cannot consume reply queue")
	}

	go b.dispatch(replies)

	return nil
}

// Close terminates the connection to the broker. Outstanding operations fail with an unavailable error.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	return b.conn.Close()
}

// dispatch routes node replies to the operation that published the matching correlation id. Replies arriving after
// the operation was cancelled are discarded, which keeps submissions at-most-once: a late receipt never resurrects a
// request the client already gave up on.
func (b *Bridge) dispatch(replies <-chan amqp.Delivery) {
	for d := range replies {
		b.mu.Lock()
		ch, ok := b.pending[d.CorrelationId]
		if ok {
			delete(b.pending, d.CorrelationId)
			ch <- d.Body // buffered, never blocks
		}
		b.mu.Unlock()

		if !ok {
			logrus.WithField("correlation_id", d.CorrelationId).Debug("discarding late node reply")
		}
	}

	// reply consumer gone: the connection is lost, fail whatever is still waiting
	b.mu.Lock()
	b.closed = true
	for id, ch := range b.pending {
		delete(b.pending, id)
		close(ch)
	}
	b.mu.Unlock()
}

// call publishes one operation and waits for its reply or for ctx to end. The context deadline is also stamped as
// message expiration so an abandoned request does not sit in the node queue beyond its usefulness.
func (b *Bridge) call(ctx context.Context, key string, req request) (json.RawMessage, error) {
	corrID := uuid.NewString()

	ch := make(chan []byte, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, bridge.NewError(bridge.KindUnavailable, "node bridge is closed")
	}
	b.pending[corrID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, corrID)
		b.mu.Unlock()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, bridge.Errorf(bridge.KindInternal, "cannot encode %s operation", req.Op)
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: corrID,
		ReplyTo:       b.replyQ,
		Headers:       amqp.Table{backendHeader: string(b.engine.Engine)},
		Body:          body,
	}
	if dl, ok := ctx.Deadline(); ok {
		ttl := time.Until(dl)
		if ttl <= 0 {
			return nil, bridge.NewError(bridge.KindTimeout, "deadline expired before dispatch")
		}
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	b.pubMu.Lock()
	err = b.pub.Publish(reqExchange, key, false, false, pub)
	b.pubMu.Unlock()
	if err != nil {
		logrus.WithError(err).Warnf("cannot publish %s operation", req.Op)
		return nil, bridge.NewError(bridge.KindUnavailable, "cannot reach node")
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, bridge.NewError(bridge.KindTimeout, "node did not answer within the deadline")
		}
		return nil, ctx.Err()
	case raw, ok := <-ch:
		if !ok {
			return nil, bridge.NewError(bridge.KindUnavailable, "connection to node lost")
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, bridge.NewError(bridge.KindInternal, "malformed node reply")
		}
		if env.Error != nil {
			return nil, bridge.NewError(bridge.KindFromCode(env.Error.Code), env.Error.Message)
		}
		return env.Result, nil
	}
}

// SubmitEvent forwards one signed submission and decodes its receipt. The submission is published exactly once.
func (b *Bridge) SubmitEvent(ctx context.Context, sub bridge.EventSubmission) (bridge.Receipt, error) {
	raw, err := b.call(ctx, "submit", request{Op: "submit", Submission: &sub})
	if err != nil {
		return bridge.Receipt{}, err
	}

	var rec bridge.Receipt
	if err := json.Unmarshal(raw, &rec); err != nil {
		return bridge.Receipt{}, bridge.NewError(bridge.KindInternal, "malformed node receipt")
	}
	return rec, nil
}

// QueryState fetches one resource. The node result document is returned verbatim.
func (b *Bridge) QueryState(ctx context.Context, q bridge.StateQuery) (json.RawMessage, error) {
	return b.call(ctx, "query", request{Op: "query", Query: &q})
}

// ListSubjects returns the page of subjects matching the filters.
func (b *Bridge) ListSubjects(ctx context.Context, q bridge.SubjectQuery) ([]bridge.SubjectData, error) {
	raw, err := b.call(ctx, "subjects", request{Op: "subjects", Subjects: &q})
	if err != nil {
		return nil, err
	}

	subjects := []bridge.SubjectData{}
	if err := json.Unmarshal(raw, &subjects); err != nil {
		return nil, bridge.NewError(bridge.KindInternal, "malformed subject page")
	}
	return subjects, nil
}

// Subscribe binds a fresh exclusive queue to the subject's notification topic and streams it until ctx ends, the
// subscription is closed, or the node side goes away.
func (b *Bridge) Subscribe(ctx context.Context, subjectID string) (*bridge.Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, bridge.NewError(bridge.KindUnavailable, "cannot reach node")
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, bridge.NewError(bridge.KindUnavailable, "cannot open subscription queue")
	}
	if err = ch.QueueBind(q.Name, "subject."+subjectID+".#", eventExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, bridge.NewError(bridge.KindUnavailable, "cannot bind subscription queue")
	}

	msgs, err := ch.Consume(q.Name, "gateway-"+uuid.NewString(), true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, bridge.NewError(bridge.KindUnavailable, "cannot consume subscription queue")
	}

	release := func() error {
		if errClose := ch.Close(); errClose != nil && !errors.Is(errClose, amqp.ErrClosed) {
			return errClose
		}
		return nil
	}

	out := make(chan bridge.Notification)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = release()
				for range msgs { // drain until the broker confirms the cancel
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var n bridge.Notification
				if err := json.Unmarshal(d.Body, &n); err != nil {
					logrus.WithField("subject_id", subjectID).Warn("dropping malformed notification")
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					_ = release()
					for range msgs {
					}
					return
				}
			}
		}
	}()

	return bridge.NewSubscription(subjectID, out, release), nil
}
