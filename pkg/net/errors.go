package net

import "errors"

var (
	ErrListen          = errors.New("listen failed")
	ErrAccept          = errors.New("accept failed")
	ErrHandshake       = errors.New("TLS handshake failed")
	ErrLoadCertificate = errors.New("load TLS certificate")
	ErrGenerateCert    = errors.New("generate self-signed certificate")
	ErrSaveCert        = errors.New("save TLS certificate")
)
