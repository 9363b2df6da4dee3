package debug

import "fmt"

// Assert panics if the condition is false and the debug build tag is set.
// It compiles to a no-op otherwise.
func Assert(condition bool, format string, args ...any) {
	if Debug && !condition {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
