// Package httpwire reads and writes the small HTTP/1.1 subset served by the
// console: one request per connection, no chunking, no keep-alive.
package httpwire

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jingkaihe/gameward/internal/errx"
)

const (
	MaxHeaderBytes = 64 << 10
	MaxBodyBytes   = 1 << 20

	headerSep = ": "
	cookieSep = "; "
)

// Request is one parsed request. Header names keep the case they arrived
// with and lookups are exact.
type Request struct {
	// Line is the request line verbatim, e.g. "GET /console HTTP/1.1".
	Line    string
	Headers map[string]string
	Cookies map[string]string
	// Form holds body fields; nil when no Content-Length was sent.
	Form map[string]string
}

func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	return v, ok
}

func (r *Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	return v, ok
}

func (r *Request) FormValue(name string) (string, bool) {
	v, ok := r.Form[name]
	return v, ok
}

// Method returns the first word of the request line.
func (r *Request) Method() string {
	method, _, _ := strings.Cut(r.Line, " ")
	return method
}

// Path returns the second word of the request line.
func (r *Request) Path() string {
	_, rest, _ := strings.Cut(r.Line, " ")
	path, _, _ := strings.Cut(rest, " ")
	return path
}

// ReadRequest parses a request from conn. A positive budget bounds the whole
// read with a deadline; zero leaves the read unbounded.
func ReadRequest(conn net.Conn, budget time.Duration) (*Request, error) {
	if budget > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(budget)); err != nil {
			return nil, errx.Wrap(ErrParse, err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	return Parse(bufio.NewReader(conn))
}

// Parse reads header lines up to the blank terminator, then a body of
// exactly Content-Length bytes when that header is present.
func Parse(br *bufio.Reader) (*Request, error) {
	lines, err := readHeaderBlock(br)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyRequest
	}

	req := &Request{
		Line:    lines[0],
		Headers: make(map[string]string, len(lines)-1),
		Cookies: make(map[string]string),
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, headerSep)
		if !ok || name == "" {
			return nil, errx.With(ErrMalformedHeader, ": %q", line)
		}
		req.Headers[name] = value
	}

	if raw, ok := req.Headers["Cookie"]; ok {
		if err := parseCookies(raw, req.Cookies); err != nil {
			return nil, err
		}
	}

	if raw, ok := req.Headers["Content-Length"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, errx.With(ErrInvalidContentLength, ": %q", raw)
		}
		if n > MaxBodyBytes {
			return nil, errx.With(ErrBodyTooLarge, ": %d bytes", n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, errx.Wrap(ErrTruncated, err)
		}
		form, err := ParseForm(string(body), req.Headers["Content-Type"])
		if err != nil {
			return nil, err
		}
		req.Form = form
	}

	return req, nil
}

func readHeaderBlock(br *bufio.Reader) ([]string, error) {
	var lines []string
	total := 0
	for {
		raw, err := br.ReadString('\n')
		total += len(raw)
		if total > MaxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrTruncated
			}
			return nil, errx.Wrap(ErrTruncated, err)
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

func parseCookies(raw string, into map[string]string) error {
	for _, pair := range strings.Split(raw, cookieSep) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return errx.With(ErrMalformedCookie, ": %q", pair)
		}
		into[name] = value
	}
	return nil
}

// ParseForm splits a request body into fields. URL-encoded bodies are
// '&'-delimited and unescaped; anything else is read as CRLF-delimited
// name=value lines, which is what text/plain form posts produce.
func ParseForm(body, contentType string) (map[string]string, error) {
	form := make(map[string]string)
	mediaType, _, _ := strings.Cut(contentType, ";")
	if strings.EqualFold(strings.TrimSpace(mediaType), "application/x-www-form-urlencoded") {
		for _, piece := range strings.Split(body, "&") {
			if piece == "" {
				continue
			}
			name, value, ok := strings.Cut(piece, "=")
			if !ok {
				return nil, errx.With(ErrMalformedBody, ": %q", piece)
			}
			n, err := url.QueryUnescape(name)
			if err != nil {
				return nil, errx.Wrap(ErrMalformedBody, err)
			}
			v, err := url.QueryUnescape(value)
			if err != nil {
				return nil, errx.Wrap(ErrMalformedBody, err)
			}
			form[n] = v
		}
		return form, nil
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return form, nil
	}
	for _, piece := range strings.Split(trimmed, "\r\n") {
		name, value, ok := strings.Cut(piece, "=")
		if !ok {
			return nil, errx.With(ErrMalformedBody, ": %q", piece)
		}
		form[name] = value
	}
	return form, nil
}
