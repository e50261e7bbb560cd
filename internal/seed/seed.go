// Package seed generates placeholder file bytes for newly-created leaf
// files: a header line identifying the producing leaf followed by random
// printable bytes, useful for eyeballing which leaf produced a file during
// debugging.
package seed

import (
	"fmt"
	"math/rand"
)

// DefaultSize is the number of random body bytes appended after the
// header.
const DefaultSize = 256

// printableLow/printableRange bound the ASCII printable range [32,126].
const (
	printableLow   = 32
	printableRange = 95
)

// Generate returns placeholder bytes for a file newly created by leafID.
func Generate(leafID int, size int) []byte {
	if size <= 0 {
		size = DefaultSize
	}
	header := []byte(fmt.Sprintf("Created by leaf %d\n", leafID))
	body := make([]byte, size)
	for i := range body {
		body[i] = byte(printableLow + rand.Intn(printableRange))
	}
	return append(header, body...)
}
