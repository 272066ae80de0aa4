//go:build !debug

package debug

// Debug is set through the debug build tag.
const Debug = false
