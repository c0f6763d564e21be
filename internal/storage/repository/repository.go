// Package repository contains the database repositories for cards,
// plays, and global rankings.
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a conditional play update
	// loses the optimistic-concurrency race.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicateName is returned when a card name collides with an
	// existing card of the same tenant.
	ErrDuplicateName = errors.New("card name already exists")
)
