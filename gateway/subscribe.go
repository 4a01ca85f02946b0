package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kore-ledger/kore-gateway/lib/store"
	"github.com/kore-ledger/kore-gateway/lib/util"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// subscriptionsHandler lists the gateway's active subject subscriptions from the registry, optionally filtered by
// subject.
func (g *Gateway) subscriptionsHandler(rw http.ResponseWriter, r *http.Request) {
	if g.db == nil {
		g.replyBody(rw, r, http.StatusOK, json.RawMessage(`[]`))
		return
	}

	subs, err := g.db.GetSubscriptions()
	if err != nil {
		logrus.WithError(err).Error("cannot read subscription registry")
		g.replyError(rw, r, http.StatusServiceUnavailable, "registry unavailable")

		return
	}

	if subject := r.URL.Query().Get("subject"); subject != "" {
		filtered := []store.Subscription{}
		for _, s := range subs {
			if s.SubjectID == subject {
				filtered = append(filtered, s)
			}
		}
		subs = filtered
	}

	body, _ := json.Marshal(subs)
	g.replyBody(rw, r, http.StatusOK, body)
}

// subscribeHandler upgrades the request to a websocket and streams the subject's state changes until either side
// goes away. Each connection is one registry record; registry write failures degrade to logs and never interrupt
// the stream.
func (g *Gateway) subscribeHandler(rw http.ResponseWriter, r *http.Request) {
	subjectID := mux.Vars(r)["subject-id"]

	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || util.In(g.cors, "*") || util.In(g.cors, origin)
		},
	}

	conn, err := up.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already answered the client
		logrus.WithError(err).Debug("websocket upgrade rejected")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := g.node.Subscribe(ctx, subjectID)
	if err != nil {
		logrus.WithError(err).WithField("subject_id", subjectID).Warn("cannot subscribe")
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "node unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

		return
	}
	defer sub.Close()

	consumer := uuid.NewString()
	if g.db != nil {
		rec := store.Subscription{
			SubjectID:  subjectID,
			Consumer:   consumer,
			RemoteAddr: r.RemoteAddr,
			CreatedAt:  time.Now().UTC(),
		}
		if _, err := g.db.AddSubscription(rec); err != nil {
			logrus.WithError(err).Warn("cannot record subscription")
		}
		defer func() {
			if err := g.db.RemoveSubscription(subjectID, consumer); err != nil && err != store.ErrSubNotFound {
				logrus.WithError(err).Warn("cannot remove subscription record")
			}
		}()
	}

	// the read loop only detects the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
