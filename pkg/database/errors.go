// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors shared by the store
// implementations built on top of Client.

package database

import "errors"

// ErrNotFound is returned by a store's lookup methods when a requested
// row does not exist. Store-specific "not found" conditions (no such
// sortition, no such burn header, no such host block) wrap this with
// fmt.Errorf("%w: ...") so callers can still errors.Is against it.
var ErrNotFound = errors.New("entity not found")
