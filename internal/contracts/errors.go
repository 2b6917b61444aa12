package contracts

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPresignUnavailable = errors.New("presigned uploads not supported by storage backend")
)
