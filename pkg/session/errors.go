package session

import "errors"

var ErrHashPassword = errors.New("hash password")
