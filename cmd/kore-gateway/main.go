// Package main: Kore HTTP gateway service.
//
// The gateway puts a RESTful, TLS-terminated edge in front of a single Kore node. It holds no ledger state of its
// own: every request is translated into one node bridge operation and every node failure into one HTTP status.
package main

import (
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kore-ledger/kore-gateway/gateway"
	"github.com/kore-ledger/kore-gateway/lib/backend"
	"github.com/kore-ledger/kore-gateway/lib/bridge/amqp"
	"github.com/kore-ledger/kore-gateway/lib/config"
	"github.com/kore-ledger/kore-gateway/lib/store"
	"github.com/kore-ledger/kore-gateway/lib/store/db"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	monitor := flag.Bool("m", false, "flag to monitor the server with Prometheus at http://localhost:9100")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		logrus.WithError(err).Fatal("cannot load configuration")
	}

	if lvl, errLvl := logrus.ParseLevel(conf.LogLevel); errLvl == nil {
		logrus.SetLevel(lvl)
	}

	logrus.Infof("configuration:%+v", conf)

	// the TLS listener is the service contract: refuse to start without loadable material
	if conf.SSLPort == "" || conf.SSLCert == "" || conf.SSLKey == "" {
		logrus.Fatal("TLS material is required: ssl_port, ssl_cert and ssl_key must be configured")
	}
	if _, err = tls.LoadX509KeyPair(conf.SSLCert, conf.SSLKey); err != nil {
		logrus.WithError(err).Fatal("cannot load TLS material")
	}

	// resolve the node storage engine: exactly one must be configured
	sel, err := backend.Resolve(conf.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("cannot resolve storage backend")
	}

	logrus.Infof("node storage backend: %s (%s)", sel.Engine, sel.Path)

	// connect to the subscription registry database
	var dbConn store.DB

	if conf.DBConn != "" {
		if dbConn, err = db.New(conf.DBType, conf.DBConn); err != nil {
			logrus.WithError(err).Fatal("cannot connect to registry database")
		}

		logrus.Infof("connecting to database:%+v", conf.DBConn)
	}

	// load Prometheus monitor
	if *monitor {
		go func() {
			logrus.Info("serving metrics API")

			h := http.NewServeMux()

			h.Handle("/metrics", promhttp.Handler())
			_ = http.ListenAndServe(":9100", h)
		}()
	}

	// connect the node bridge
	node, err := amqp.New(conf.BridgeConn, sel)
	if err != nil {
		time.Sleep(10 * time.Second) // wait 10s for the broker to be ready and try to reconnect

		if node, err = amqp.New(conf.BridgeConn, sel); err != nil {
			logrus.WithError(err).Fatal("cannot connect to node bridge")
		}
	}

	if err = node.Setup(); err != nil {
		logrus.WithError(err).Fatal("cannot set up node bridge")
	}

	// create gateway service
	g := gateway.New(conf, node, conf.DBType, dbConn)

	// capture CTRL+C or docker's SIGTERM for gracious exit
	finish := make(chan int)

	go func() {
		sigchan := make(chan os.Signal, 10)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		logrus.Info("program killed !")
		// do last actions and wait for all write operations to end
		g.Stop()
		close(finish)
	}()

	// init RESTful API, wait for its return and log response
	logrus.Infof("gateway: %s", g.Init(conf.Endpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	<-finish
}
