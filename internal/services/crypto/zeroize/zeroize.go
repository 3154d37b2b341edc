// Package zeroize scrubs sensitive byte buffers from memory once the caller
// is done with them.
package zeroize

import "runtime"

// Bytes zeros b in place. runtime.KeepAlive prevents the compiler from
// deciding the writes are dead and eliding them.
func Bytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
