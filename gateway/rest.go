package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const headerTimeout = 10 * time.Second

// handler builds the full request pipeline: the routed API surface wrapped by the middleware chain, outermost to
// innermost: trace, metrics, cors, rate limit.
func (g *Gateway) handler() http.Handler {
	r := mux.NewRouter()
	for _, rt := range routeTable() {
		rt := rt
		r.HandleFunc(rt.path, func(rw http.ResponseWriter, req *http.Request) {
			rt.handler(g, rw, req)
		}).Methods(rt.method).Name(rt.name)
	}
	if g.docs {
		r.HandleFunc(openapiPath, g.openapiHandler).Methods(http.MethodGet)
		r.HandleFunc(docPath, g.docHandler).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(g.notFoundHandler)
	r.MethodNotAllowedHandler = g.methodNotAllowedHandler(r)
	g.router = r

	return g.trace(g.metrics(g.corsAllow(g.rateLimit(r))))
}

// Init sets up and starts the http/https servers to service the RESTful API. The https (TLS) server is the primary
// listener; a plain http server is started as well when port is informed. Init blocks until Stop is called.
func (g *Gateway) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	h := g.handler()

	// setup shutdown channel
	g.sc = make(chan struct{})

	// start http server. No write timeout: subscription streams stay open for as long as the client listens.
	if port != "" {
		g.s = &http.Server{
			Handler:           h,
			Addr:              endpoint + ":" + port,
			ReadHeaderTimeout: headerTimeout,
		}

		go func() {
			err = g.s.ListenAndServe()
		}()

		logrus.Infof("listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		g.ss = &http.Server{
			Handler:           h,
			Addr:              endpoint + ":" + sslPort,
			ReadHeaderTimeout: headerTimeout,
		}

		go func() {
			errTLS = g.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		logrus.Infof("listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-g.sc

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}

// notFoundHandler answers requests to paths outside the API surface.
func (g *Gateway) notFoundHandler(rw http.ResponseWriter, r *http.Request) {
	g.replyError(rw, r, http.StatusNotFound, "resource not found")
}

// methodNotAllowedHandler replays the request against the router once per verb to compute the Allow header.
func (g *Gateway) methodNotAllowedHandler(r *mux.Router) http.Handler {
	verbs := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		var allow []string

		for _, verb := range verbs {
			probe := req.Clone(req.Context())
			probe.Method = verb

			var match mux.RouteMatch
			if r.Match(probe, &match) && match.MatchErr == nil {
				allow = append(allow, verb)
			}
		}

		rw.Header().Set("Allow", strings.Join(allow, ", "))
		g.replyError(rw, req, http.StatusMethodNotAllowed, "method not allowed")
	})
}
