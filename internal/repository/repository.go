// Package repository implements Postgres persistence for chat sessions,
// messages and profiles on top of pgxpool.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
