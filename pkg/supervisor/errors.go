package supervisor

import "errors"

var (
	ErrSpawn = errors.New("spawn server process")
	ErrWrite = errors.New("write to server stdin")
	ErrKill  = errors.New("kill server process")
)
