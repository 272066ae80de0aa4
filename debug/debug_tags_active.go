//go:build debug

package debug

import "fmt"

func init() {
	fmt.Println("WARNING -- DEBUG FLAG IS ON")
}

// Debug is set through the debug build tag.
const Debug = true
