package main

import "errors"

// Config errors
var (
	ErrReadConfig   = errors.New("read config")
	ErrDecodeConfig = errors.New("decode config")
)

// Serve errors
var (
	ErrParseCommand  = errors.New("parse server command")
	ErrOpenEventSink = errors.New("open event sink")
	ErrLoadViews     = errors.New("load views")
)

// Tooling errors
var (
	ErrReadPassword  = errors.New("read password")
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrNoEventDB     = errors.New("no event database configured; set events.sqlite_path or pass --db")
	ErrEncodeConfig  = errors.New("encode config")
)
