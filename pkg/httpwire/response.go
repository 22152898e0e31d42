package httpwire

import (
	"io"
	"strconv"
	"strings"
)

const (
	StatusOK         = "HTTP/1.1 200 OK"
	StatusSeeOther   = "HTTP/1.1 303 See Other"
	StatusBadRequest = "HTTP/1.1 400 Bad Request"
	StatusNotFound   = "HTTP/1.1 404 Not Found"
	StatusError      = "HTTP/1.1 500 Internal Server Error"

	ContentTypeHTML = "Content-Type: text/html; charset=utf-8"
	ContentTypeText = "Content-Type: text/plain; charset=utf-8"
)

// Response is written as the status line, the extra header lines, a
// Content-Length header, a blank line and the body.
type Response struct {
	Status  string
	Headers []string
	Body    string
}

func (r *Response) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.Grow(len(r.Status) + len(r.Body) + 64)
	b.WriteString(r.Status)
	b.WriteString("\r\n")
	for _, h := range r.Headers {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(r.Body)))
	b.WriteString("\r\n\r\n")
	b.WriteString(r.Body)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WithHeader appends a header line and returns r.
func (r *Response) WithHeader(line string) *Response {
	r.Headers = append(r.Headers, line)
	return r
}

func HTML(status, body string) *Response {
	return &Response{Status: status, Headers: []string{ContentTypeHTML}, Body: body}
}

func Text(status, body string) *Response {
	return &Response{Status: status, Headers: []string{ContentTypeText}, Body: body}
}

// Redirect is a 303 with a Location header and no body.
func Redirect(location string) *Response {
	return &Response{Status: StatusSeeOther, Headers: []string{"Location: " + location}}
}

// SetCookie formats a Set-Cookie header line. maxAge is in seconds; a
// negative value tells the client to drop the cookie.
func SetCookie(name, value string, maxAge int) string {
	return "Set-Cookie: " + name + "=" + value + "; SameSite=Strict; Max-Age=" + strconv.Itoa(maxAge)
}
