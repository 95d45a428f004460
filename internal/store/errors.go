package store

import "errors"

var (
	// ErrRecordNotFound is returned by all lookups on miss. Callers decide
	// whether a miss constitutes an authentication failure.
	ErrRecordNotFound = errors.New("record not found")

	// ErrCodeAlreadyConsumed is returned by ConsumeAuthorizationCode when the
	// code row was already deleted by a concurrent exchange (0 rows deleted).
	ErrCodeAlreadyConsumed = errors.New("authorization code already consumed")

	// ErrUsernameConflict is returned when a username already exists
	ErrUsernameConflict = errors.New("username already exists")
)
