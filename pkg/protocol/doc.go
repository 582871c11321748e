// Package protocol implements the single-command file retrieval protocol.
//
// The protocol is a small subset of HTTP/1.1 GET. Requests are ASCII text
// lines separated by CRLF and terminated by an empty line:
//
//	GET /notes.txt\r\n
//	\r\n
//
// Only the request line is interpreted; header lines are ignored.
//
// # Responses
//
// Every response, including errors, carries the same three-line header block:
//
//	HTTP/1.1 200 OK\r\n
//	Content-Length: 11\r\n
//	Content-Type: text/plain\r\n
//	\r\n
//	hello world
//
// Status lines used:
//
//   - 200 OK
//   - 400 Bad Request (malformed or oversized request)
//   - 404 File Not Found (empty body)
//   - 501 Not Implemented (any method other than GET, or an empty request)
package protocol
