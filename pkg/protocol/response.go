package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Version is the protocol version written on every status line.
	Version = "HTTP/1.1"

	// DefaultContentType is used when a response has no content type.
	DefaultContentType = "text/plain"

	// MaxHeaderLines bounds ReadResponse against endless header blocks.
	MaxHeaderLines = 32
)

// Header names carried by a response.
const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
)

// ErrMalformedResponse is returned by ReadResponse for input that is not a
// well-formed response.
var ErrMalformedResponse = errors.New("protocol: malformed response")

// Response is a status, a content type and a body. Every response,
// including errors, is written with the same header block.
type Response struct {
	Status      Status
	ContentType string
	Body        []byte
}

// NewResponse creates a response.
func NewResponse(status Status, contentType string, body []byte) *Response {
	return &Response{Status: status, ContentType: contentType, Body: body}
}

// ErrorResponse creates a response with an empty body for status.
func ErrorResponse(status Status) *Response {
	return &Response{Status: status, ContentType: DefaultContentType}
}

// Headers returns the header block of r as a map.
func (r *Response) Headers() map[string]string {
	return map[string]string{
		HeaderContentLength: strconv.Itoa(len(r.Body)),
		HeaderContentType:   r.contentType(),
	}
}

func (r *Response) contentType() string {
	if r.ContentType == "" {
		return DefaultContentType
	}
	return r.ContentType
}

// Bytes serializes r.
func (r *Response) Bytes() []byte {
	return Build(r.Status, r.contentType(), r.Body)
}

// WriteTo writes the serialized response to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

// Build serializes a response:
//
//	HTTP/1.1 <status>\r\n
//	Content-Length: <len(body)>\r\n
//	Content-Type: <contentType>\r\n
//	\r\n
//	<body>
//
// The body is appended as is.
func Build(status Status, contentType string, body []byte) []byte {
	if contentType == "" {
		contentType = DefaultContentType
	}
	var b bytes.Buffer
	b.Grow(64 + len(contentType) + len(body))
	b.WriteString(Version)
	b.WriteByte(' ')
	b.WriteString(status.String())
	b.WriteString("\r\n")
	b.WriteString(HeaderContentLength)
	b.WriteString(": ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n")
	b.WriteString(HeaderContentType)
	b.WriteString(": ")
	b.WriteString(contentType)
	b.WriteString("\r\n\r\n")
	b.Write(body)
	return b.Bytes()
}

// ReadResponse reads one response from br. The body length is taken from
// Content-Length; a response without it has an empty body.
func ReadResponse(br *bufio.Reader) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	version, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(version, "HTTP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	codeText, _, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, codeText)
	}

	resp := &Response{Status: Status(code)}
	length := 0
	for i := 0; ; i++ {
		if i > MaxHeaderLines {
			return nil, fmt.Errorf("%w: too many header lines", ErrMalformedResponse)
		}
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedResponse, line)
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(name, HeaderContentLength):
			length, err = strconv.Atoi(value)
			if err != nil || length < 0 {
				return nil, fmt.Errorf("%w: content length %q", ErrMalformedResponse, value)
			}
		case strings.EqualFold(name, HeaderContentType):
			resp.ContentType = value
		}
	}

	if length > 0 {
		resp.Body = make([]byte, length)
		if _, err := io.ReadFull(br, resp.Body); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
