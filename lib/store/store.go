// Package store defines the interface for database implementations backing the gateway's subscription registry.
package store

import (
	"errors"
)

// DB defines the required methods to persist the registry of active subject subscriptions.
type DB interface {
	// AddSubscription records an active subscription and returns the stored record id.
	AddSubscription(Subscription) ([]byte, error)
	// RemoveSubscription deletes the record for the given subject and consumer.
	RemoveSubscription(subjectID, consumer string) error
	// GetSubscriptions returns all currently recorded subscriptions.
	GetSubscriptions() ([]Subscription, error)
}

// Errors returned
var (
	ErrSubNotFound = errors.New("subscription was not found in store")
)
