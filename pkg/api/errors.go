package api

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)
