package control

import "errors"

var (
	ErrStartServer = errors.New("control: start server")
	ErrOptions     = errors.New("control: invalid options")
)
