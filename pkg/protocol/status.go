package protocol

import (
	"strconv"
)

// Status is a response status code.
type Status uint16

const (
	StatusOK             Status = 200
	StatusBadRequest     Status = 400
	StatusNotFound       Status = 404
	StatusNotImplemented Status = 501
)

// Code returns the numeric status code.
func (s Status) Code() int {
	return int(s)
}

// Reason returns the reason phrase sent after the code.
func (s Status) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusNotFound:
		return "File Not Found"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return "Unknown"
	}
}

// String returns the status line text, e.g. "404 File Not Found".
func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}
