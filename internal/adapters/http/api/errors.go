package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrThrottled      = errors.New("too many requests")
	ErrNoticeNotFound = errors.New("notice not found")
)
