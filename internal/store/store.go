// Package store persists the last applied light state so the strip comes
// back in the same color after a power cycle.
package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	SaveLightState(st *LightState) error
	GetLightState() (*LightState, error)
	Close() error
}
