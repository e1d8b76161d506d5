// Package errors provides coded, actionable errors for the chatdctl
// command line tool.
//
// Each error carries a code (e.g. "E102") that maps to a registered
// message and explanation. Callers attach a suggestion and, for config
// files, the location of the offending input:
//
//	err := errors.New("E102").
//	    WithLocation("chatd.json", 7, 14).
//	    WithSuggestion("Check that chatd.json is valid JSON")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E102: Invalid config file
//	//
//	//   chatd.json:7:14
//	//
//	//   The config file could not be parsed as JSON.
//	//
//	//   Hint: Check that chatd.json is valid JSON
//
// # Error Categories
//
//   - config: chatd.json loading and validation
//   - protocol: frames that do not decode
//   - connection: shard servers that cannot be reached
//   - cli: bad command line input
package errors
