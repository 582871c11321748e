package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	got := string(Build(StatusOK, "text/html", []byte("<p>hi</p>")))
	want := "HTTP/1.1 200 OK\r\nContent-Length: 9\r\nContent-Type: text/html\r\n\r\n<p>hi</p>"
	if got != want {
		t.Fatalf("Build() = %q, want %q", got, want)
	}
}

func TestBuild_BodyIsVerbatim(t *testing.T) {
	body := []byte{0x00, '\r', '\n', 0xff, 0xfe, '\n'}
	out := Build(StatusOK, "text/plain", body)
	if !bytes.HasSuffix(out, body) {
		t.Fatalf("body was altered: %q", out)
	}
	if !bytes.Contains(out, []byte("Content-Length: 6\r\n")) {
		t.Fatalf("wrong Content-Length in %q", out)
	}
}

func TestErrorResponse_Shape(t *testing.T) {
	tests := []struct {
		status Status
		line   string
	}{
		{StatusNotFound, "HTTP/1.1 404 File Not Found\r\n"},
		{StatusNotImplemented, "HTTP/1.1 501 Not Implemented\r\n"},
		{StatusBadRequest, "HTTP/1.1 400 Bad Request\r\n"},
	}
	for _, tt := range tests {
		got := string(ErrorResponse(tt.status).Bytes())
		want := tt.line + "Content-Length: 0\r\nContent-Type: text/plain\r\n\r\n"
		if got != want {
			t.Errorf("ErrorResponse(%d) = %q, want %q", tt.status, got, want)
		}
	}
}

func TestResponse_Headers(t *testing.T) {
	r := NewResponse(StatusOK, "", []byte("abc"))
	h := r.Headers()
	if h[HeaderContentLength] != "3" || h[HeaderContentType] != DefaultContentType {
		t.Fatalf("Headers() = %v", h)
	}
}

func TestReadResponse_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	first := NewResponse(StatusOK, "text/css", []byte("body { }"))
	second := ErrorResponse(StatusNotFound)
	if _, err := first.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error: %v", err)
	}
	if _, err := second.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error: %v", err)
	}

	br := bufio.NewReader(&buf)
	got, err := ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() error: %v", err)
	}
	if got.Status != StatusOK || got.ContentType != "text/css" || string(got.Body) != "body { }" {
		t.Fatalf("first response = %+v", got)
	}

	got, err = ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() second error: %v", err)
	}
	if got.Status != StatusNotFound || len(got.Body) != 0 {
		t.Fatalf("second response = %+v", got)
	}

	if _, err := ReadResponse(br); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadResponse() at end err = %v, want EOF", err)
	}
}

func TestReadResponse_Malformed(t *testing.T) {
	inputs := []string{
		"garbage\r\n\r\n",
		"HTTP/1.1 abc OK\r\n\r\n",
		"HTTP/1.1 200 OK\r\nno-colon\r\n\r\n",
		"HTTP/1.1 200 OK\r\nContent-Length: -4\r\n\r\n",
	}
	for _, in := range inputs {
		if _, err := ReadResponse(bufio.NewReader(strings.NewReader(in))); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ReadResponse(%q) err = %v, want ErrMalformedResponse", in, err)
		}
	}

	short := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc"
	if _, err := ReadResponse(bufio.NewReader(strings.NewReader(short))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short body err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestStatus_String(t *testing.T) {
	if StatusOK.String() != "200 OK" || StatusNotFound.String() != "404 File Not Found" {
		t.Fatalf("unexpected status strings %q %q", StatusOK, StatusNotFound)
	}
	if Status(418).Reason() != "Unknown" {
		t.Fatalf("Reason() for unknown status = %q", Status(418).Reason())
	}
}
