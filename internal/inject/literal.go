package inject

import (
	"encoding/json"
)

// JSString encodes s as a JavaScript string literal, including the
// surrounding quotes. Every literal embedded in a generated script goes
// through here; user text is never spliced into code any other way.
//
// JSON string literals are valid JavaScript. encoding/json also escapes
// <, > and & (so "</script>" cannot terminate an enclosing block) and the
// U+2028/U+2029 separators, which older engines reject inside literals.
func JSString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Marshalling a string cannot fail; invalid UTF-8 is replaced.
		return `""`
	}
	return string(b)
}
