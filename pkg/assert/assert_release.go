//go:build release

package assert

// Enabled reports whether assertions are compiled in.
const Enabled = false

// Assert panics with a *Violation if cond is false.
//
// Assert is a no-op when compiled with the
// release build tag.
func Assert(cond bool, format string, args ...any) {
	// no-op
}
