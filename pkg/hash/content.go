package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Content returns the blake2b-256 digest of a note's title and content as hex.
// A zero byte separates the two fields so ("ab", "c") and ("a", "bc") differ.
func Content(title, content string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether digest is the content hash of title and content.
func Matches(digest, title, content string) bool {
	return digest != "" && digest == Content(title, content)
}
