package store

import "errors"

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUserNotFound   = errors.New("account not found")
	ErrWrongPassword  = errors.New("incorrect password")
)
