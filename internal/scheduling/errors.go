package scheduling

import "errors"

var (
	ErrNotFound     = errors.New("scheduling: visit not found")
	ErrNotScheduled = errors.New("scheduling: visit is not in scheduled state")
	ErrPastDate     = errors.New("scheduling: scheduled date is in the past")
)
