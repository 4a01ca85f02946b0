// +build integration

package mongo

import (
	"testing"
	"time"

	"github.com/kore-ledger/kore-gateway/lib/store"
)

var uri string = "mongodb://localhost:27017"

// This test requires an available MongoDB server at localhost:27017.
func TestSubscriptions(t *testing.T) {
	m, err := New(uri)
	if err != nil {
		t.Fatalf("err:%v", err)
	}
	defer m.CloseMongo()

	sub := store.Subscription{
		SubjectID:  "JKZgYhPjQdWNWWwkac0wSwqLKoOJsT0QimJmj6zjimWc",
		Consumer:   "consumer-1",
		RemoteAddr: "10.0.0.7:51234",
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	id, err := m.AddSubscription(sub)
	if err != nil {
		t.Errorf("err:%v", err)
	}
	if len(id) == 0 {
		t.Error("Expected a record id")
	}

	// a second add for the same subject and consumer keeps the record id
	id2, err := m.AddSubscription(sub)
	if err != nil {
		t.Errorf("err:%v", err)
	}
	if string(id2) != string(id) {
		t.Errorf("Expected same record id, got %x and %x", id, id2)
	}

	subs, err := m.GetSubscriptions()
	if err != nil {
		t.Errorf("err:%v", err)
	}

	var found bool
	for _, s := range subs {
		if s.SubjectID == sub.SubjectID && s.Consumer == sub.Consumer {
			found = true
		}
	}
	if !found {
		t.Errorf("Subscription not listed:%+v", subs)
	}

	if err = m.RemoveSubscription(sub.SubjectID, sub.Consumer); err != nil {
		t.Errorf("err:%v", err)
	}

	if err = m.RemoveSubscription(sub.SubjectID, sub.Consumer); err != store.ErrSubNotFound {
		t.Errorf("Expected ErrSubNotFound, got:%v", err)
	}
}
