// Package errors provides coded, actionable error messages for the getserve
// command line.
//
// Library packages (resolve, server, client) return plain Go errors. The
// command layer passes them through Classify, which maps known failures to a
// registered code with a hint for the operator, and prints the result with
// PrintError.
//
// # Error Categories
//
//   - resolve: host name and address family problems
//   - network: binding and listening socket failures
//   - config: getserve.json and flag validation
//   - storage: the directory or bucket files are served from
//   - protocol: failed request/response exchanges seen by the client
//   - cli: everything else the command line reports
//
// # Error Codes
//
// Codes are grouped by range: E100-E109 resolution, E110-E119 listener,
// E120-E139 configuration, E140-E159 client.
//
// # Usage
//
//	err := errors.New("E123").
//	    WithLocation("getserve.json", 4, 15).
//	    WithSuggestion("Set capacity to 1 or more.")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E123: Invalid capacity
//	//
//	//   getserve.json:4:15
//	//
//	//        2 │   "host": "localhost",
//	//        3 │   "port": 9001,
//	//   →    4 │   "capacity": 0
//	//          │               ^
//	//        5 │ }
//	//
//	//   Capacity and backlog must be at least 1.
//	//
//	//   Hint: Set capacity to 1 or more.
package errors
