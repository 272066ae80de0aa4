// Package debug gates the engine's internal invariant assertions behind
// the debug build tag.
package debug

// Assert panics if the condition is false. It does nothing unless the
// debug build tag is set.
func Assert(condition bool, message ...string) {
	if !Debug {
		return
	}
	if !condition {
		if len(message) > 0 {
			panic(message[0])
		}
		panic("assertion failed")
	}
}
