package httpwire

import (
	"errors"
	"fmt"
)

// ErrParse matches every request parsing failure.
var ErrParse = errors.New("parse request")

var (
	ErrTruncated            = parseError("request truncated")
	ErrEmptyRequest         = parseError("empty request line")
	ErrMalformedHeader      = parseError("malformed header line")
	ErrMalformedCookie      = parseError("malformed cookie")
	ErrInvalidContentLength = parseError("invalid Content-Length")
	ErrBodyTooLarge         = parseError("body too large")
	ErrHeaderTooLarge       = parseError("header block too large")
	ErrMalformedBody        = parseError("malformed body field")
)

func parseError(msg string) error {
	return fmt.Errorf("%w: %s", ErrParse, msg)
}
