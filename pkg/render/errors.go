package render

import "errors"

var (
	ErrParseView   = errors.New("parse view")
	ErrUnknownView = errors.New("unknown view")
	ErrRenderView  = errors.New("render view")
)
