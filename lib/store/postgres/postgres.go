// Package postgres implements the subscription registry for PostgreSQL.
package postgres

import (
	"database/sql"

	_ "github.com/lib/pq" // load the postgres driver that is used by the system
	"github.com/pkg/errors"

	"github.com/kore-ledger/kore-gateway/lib/store"
)

// table is created on connect so a fresh database works without manual migration.
const schema = `CREATE TABLE IF NOT EXISTS subscriptions (
	id          SERIAL PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	consumer    TEXT NOT NULL,
	remote_addr TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, consumer)
)`

type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to DB in %s", connection)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "cannot prepare subscriptions table")
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// AddSubscription records an active subscription. A consumer re-subscribing to the same subject keeps its existing
// record id.
func (p *Postgres) AddSubscription(s store.Subscription) ([]byte, error) {
	var id []byte

	err := p.db.QueryRow(
		`INSERT INTO subscriptions (subject_id, consumer, remote_addr, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (subject_id, consumer) DO UPDATE SET remote_addr = EXCLUDED.remote_addr
		 RETURNING id::TEXT`,
		s.SubjectID, s.Consumer, s.RemoteAddr, s.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "could not insert subscription in db")
	}

	return id, nil
}

// RemoveSubscription deletes the record for the given subject and consumer.
func (p *Postgres) RemoveSubscription(subjectID, consumer string) error {
	res, err := p.db.Exec(
		`DELETE FROM subscriptions WHERE subject_id = $1 AND consumer = $2`,
		subjectID, consumer,
	)
	if err != nil {
		return errors.Wrap(err, "could not delete subscription from db")
	}

	if n, errRows := res.RowsAffected(); errRows == nil && n != 1 {
		return store.ErrSubNotFound
	}

	return nil
}

// GetSubscriptions returns all currently recorded subscriptions.
func (p *Postgres) GetSubscriptions() ([]store.Subscription, error) {
	rows, err := p.db.Query(
		`SELECT id::TEXT, subject_id, consumer, remote_addr, created_at FROM subscriptions ORDER BY created_at`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error getting subscriptions from db")
	}
	defer rows.Close()

	subs := []store.Subscription{}

	for rows.Next() {
		var s store.Subscription
		if err = rows.Scan(&s.ID, &s.SubjectID, &s.Consumer, &s.RemoteAddr, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "error decoding subscription from db")
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}
