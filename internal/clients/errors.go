package clients

import "errors"

var (
	ErrNotFound        = errors.New("clients: client not found")
	ErrDuplicatePhone  = errors.New("clients: phone already registered")
	ErrNotProspect     = errors.New("clients: client is not a prospect")
	ErrAlreadyInactive = errors.New("clients: client already inactive")
)
