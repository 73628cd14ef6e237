package store

import "errors"

var (
	ErrNotFound = errors.New("entity not found")
	ErrNoKey    = errors.New("entity has neither local nor remote id")
)
