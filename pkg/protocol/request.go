package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// Method is a request method token.
type Method string

const (
	MethodGet         Method = "GET"
	MethodUnsupported Method = ""
)

// Parse errors. Both are carried inside a *ParseError.
var (
	// ErrUnsupportedMethod is returned for an empty request or any method
	// other than GET.
	ErrUnsupportedMethod = errors.New("protocol: unsupported method")

	// ErrMalformedRequest is returned when the request line lacks a target.
	ErrMalformedRequest = errors.New("protocol: malformed request")
)

// ParseError describes why a request could not be parsed.
type ParseError struct {
	Token string // offending token, if any
	Err   error  // ErrUnsupportedMethod or ErrMalformedRequest
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Token == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Token)
}

// Unwrap returns the underlying sentinel for errors.Is.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Request is a parsed request.
type Request struct {
	Method Method
	Target string
}

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
)

// FrameEnd returns the index just past the blank line that terminates the
// first request in buf, or -1 if buf does not hold a complete request yet.
// A bare "\n\n" is accepted as well as "\r\n\r\n".
func FrameEnd(buf []byte) int {
	end := -1
	if i := bytes.Index(buf, crlfcrlf); i >= 0 {
		end = i + len(crlfcrlf)
	}
	if i := bytes.Index(buf, lflf); i >= 0 && (end < 0 || i+len(lflf) < end) {
		end = i + len(lflf)
	}
	return end
}

// Complete reports whether buf holds at least one complete request.
func Complete(buf []byte) bool {
	return FrameEnd(buf) >= 0
}

// Parse parses the request line of buf. Only the first line is looked at:
// the method token and the first argument as target. The protocol version
// and any header lines are ignored.
func Parse(buf []byte) (*Request, error) {
	line := buf
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Err: ErrUnsupportedMethod}
	}
	if Method(fields[0]) != MethodGet {
		return nil, &ParseError{Token: string(fields[0]), Err: ErrUnsupportedMethod}
	}
	if len(fields) < 2 {
		return nil, &ParseError{Token: string(fields[0]), Err: ErrMalformedRequest}
	}

	return &Request{Method: MethodGet, Target: string(fields[1])}, nil
}

// EncodeRequest returns the wire form of a GET for target with no headers.
func EncodeRequest(target string) []byte {
	b := make([]byte, 0, len(target)+8)
	b = append(b, MethodGet...)
	b = append(b, ' ')
	b = append(b, target...)
	b = append(b, crlfcrlf...)
	return b
}
