// Package gateway implements the Kore HTTP gateway service.
//
// The gateway is a thin, stateless edge in front of a Kore node: it terminates TLS, authenticates nothing itself,
// translates the RESTful API into the four node bridge operations and maps node failures onto HTTP statuses. All
// ledger state lives behind the bridge; the only thing the gateway persists is its registry of active subject
// subscriptions.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kore-ledger/kore-gateway/lib/bridge"
	"github.com/kore-ledger/kore-gateway/lib/config"
	"github.com/kore-ledger/kore-gateway/lib/store"
	"github.com/kore-ledger/kore-gateway/lib/store/db"
)

// Gateway contains the data necessary to deliver the service.
type Gateway struct {
	dbtype  string
	db      store.DB      // subscription registry connection
	node    bridge.Client // bridge to the Kore node
	timeout time.Duration // per-request deadline towards the node
	cors    []string      // allowed origins, may be ["*"]
	limit   int           // requests per client IP per minute
	docs    bool          // publish the API document endpoints

	router *mux.Router   // set by Init, used for route-name metric labels
	s      *http.Server  // http server
	ss     *http.Server  // https server
	sc     chan struct{} // server channel used for graceful shutdowns
}

// New returns a pointer to a new Gateway service.
func New(cfg config.ServiceConfig, node bridge.Client, dbtype string, dbConn store.DB) *Gateway {
	return &Gateway{
		dbtype:  dbtype,
		db:      dbConn,
		node:    node,
		timeout: time.Duration(cfg.Timeout) * time.Second,
		cors:    cfg.CorsOrigins,
		limit:   cfg.RateLimit,
		docs:    cfg.Docs,
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the connections to the node
// bridge and the registry database.
func (g *Gateway) Stop() {
	var err error

	if g.s != nil {
		if err = g.s.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("error in http server shutdown")
		}
	}
	if g.ss != nil {
		if err = g.ss.Shutdown(context.Background()); err != nil {
			logrus.WithError(err).Error("error in https server shutdown")
		}
	}
	close(g.sc) // indicate shutdowns have finished

	if err = g.node.Close(); err != nil {
		logrus.WithError(err).Error("error closing node bridge")
	}

	if g.db != nil {
		err = db.Close(g.dbtype, g.db)
		logrus.WithError(err).Infof("disconnecting %v database", g.dbtype)
	}
}
