// Package store provides the persistence implementations behind the climate
// pipeline: a PostgreSQL store for production and a concurrency-safe
// in-memory store used in tests. Both satisfy climate.Store, including its
// all-or-nothing InTx contract.
package store

import "errors"

// ErrNotFound is returned when a requested region or insight does not exist.
var ErrNotFound = errors.New("not found")
