package model

import "errors"

// ErrNotFound is wrapped by store lookups for missing rows so callers
// can branch with errors.Is without importing the store.
var ErrNotFound = errors.New("not found")
