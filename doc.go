// Package koregateway and its sub-packages implement an HTTP access layer for Kore ledger nodes.
/*
kore-gateway puts a TLS-terminated RESTful API in front of a single Kore node, for clients that want to submit signed
governance events, query ledger and subject state, read the node identity and follow subject changes in real time.

Architecture

The gateway holds no ledger state. Every HTTP request is translated into one of four asynchronous node operations
(submit-event, query-state, list-subjects, subscribe) carried over a message broker by the bridge layer (package
lib/bridge). Requests and replies are matched by correlation id, bounded by a per-request deadline, and node failures
come back classified into a small fixed taxonomy that maps one-to-one onto HTTP statuses. The bridge is implemented
as a broker agnostic interface with an AMQP implementation (package lib/bridge/amqp) and is configured via a JSON
config file at service startup.

The Kore node persists its ledger in one of several embedded storage engines. The gateway does not touch that
storage: it only resolves, once at startup, which engine block is configured (package lib/backend, exactly one of
leveldb, sqlite or rocksdb) and forwards the selection to the node with every bridge request.

The gateway keeps its own small registry of active subject subscriptions so operators can see who is listening to
what. The registry's layered implementation (package lib/store) provides a database product agnostic interface with
MongoDB and PostgreSQL backends, selected in the JSON config file.

The RESTful API itself lives in package gateway: a single immutable route table drives the router, the Allow header
on method mismatches and the published OpenAPI document. Every route passes through the same middleware pipeline:
request tracing, Prometheus metrics, a CORS origin allow-list and a per-client rate limit.

The service can be started running cmd/kore-gateway/main.go. It can also be monitored via a Prometheus API by
setting the flag "-m" at startup.
*/
package koregateway
