// Package storage is the key-value persistence primitive behind the credential
// store and the company context. Nothing else in the module reads or writes the
// underlying medium directly.
package storage

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
)

// ErrNotFound is returned by Get when the key has never been set or was removed.
var ErrNotFound = apperrors.ErrNotFound

// Storage is a string key-value store scoped to one client instance.
type Storage interface {
	// Get returns the value for key, or ErrNotFound
	Get(key string) (string, error)

	// Set creates or overwrites the value for key
	Set(key, value string) error

	// SetMany writes all entries as one unit: readers see either none or all of them
	SetMany(entries map[string]string) error

	// Remove deletes the keys. Missing keys are not an error
	Remove(keys ...string) error
}

// RemoveAttempts is how many times Purge retries Remove before blanking.
const RemoveAttempts = 3

// OpError describes a persistence failure seen by a caller that recovers from it.
type OpError struct {
	Owner string
	Op    string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s storage %s: %v", e.Owner, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == apperrors.ErrStorage
}

// Purge removes keys from s, retrying Remove. When removal keeps failing the
// keys are overwritten with empty values, which readers must treat as absent.
// The error is returned only when neither worked.
func Purge(s Storage, keys ...string) error {
	var err error
	for attempt := 0; attempt < RemoveAttempts; attempt++ {
		if err = s.Remove(keys...); err == nil {
			return nil
		}
	}

	blank := make(map[string]string, len(keys))
	for _, key := range keys {
		blank[key] = ""
	}
	if setErr := s.SetMany(blank); setErr != nil {
		return err
	}
	return nil
}
