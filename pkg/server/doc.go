// Package server provides the listener and per-connection handlers for the
// file retrieval protocol.
//
// # Architecture
//
// The server runtime consists of a few pieces:
//
//   - Server: resolves and binds the listening socket, runs the accept loop
//   - admission.Controller: caps the number of connections handled at once
//   - conn: owns one accepted connection, its buffer and its admission slot
//   - Handler: answers parsed requests (fileserve.Handler in production)
//
// # Accept Loop
//
// For every accepted connection the loop:
//  1. Acquires an admission slot, blocking while the server is at capacity
//  2. Starts a goroutine that owns the connection and the slot
//  3. Goes back to Accept
//
// The loop never waits on handler work, only on Accept and on admission.
// Connections beyond capacity queue in the kernel backlog and are picked up
// as slots free. An Accept error is fatal: the listener is closed and Serve
// returns a *ServerFatalError.
//
// # Connection Lifecycle
//
// Each connection moves through
//
//	Reading → Parsing → Dispatching → Responding → (Reading ...) → Closed
//
// with Failed reachable from any state on a transport error. Reads are
// 4096-byte chunks appended to the connection's buffer until a request is
// terminated by an empty line. Parse failures and missing files produce an
// error response and keep the connection open. Transport errors abort the
// connection. The socket is closed and the slot released on every exit,
// panics included.
//
// # Example Usage
//
//	store, _ := fileserve.OpenDir("./public", 0)
//	srv, err := server.New(server.DefaultConfig().
//	    WithAddress("", 9001).
//	    WithHandler(fileserve.NewHandler(store)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Run(context.Background()))
package server
