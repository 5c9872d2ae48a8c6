package repository

import "errors"

// Sentinel kinds for catalog errors.
var (
	ErrNotFound       = errors.New("candidate not found")
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrInvalidSortKey = errors.New("invalid sort key")
)
