// Package hashing holds the relay's content-hashing primitives.
package hashing

import "crypto/sha256"

// DoubleSHA256 returns sha256(sha256(data)), closing the length-extension
// hole a single pass leaves open when the hash doubles as an integrity
// stamp over attacker-supplied bytes.
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}
