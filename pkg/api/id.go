package api

import (
	"crypto/rand"
	"regexp"
)

// Completion IDs look like "cmpl_" followed by 24 random alphanumerics,
// drawn from crypto/rand so IDs are unguessable.
const (
	completionIDPrefix = "cmpl_"
	idLength           = 24
	idCharset          = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var completionIDPattern = regexp.MustCompile(`^cmpl_[a-zA-Z0-9]{24}$`)

// NewCompletionID mints a fresh completion ID.
func NewCompletionID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	// Map each random byte onto the charset. The modulo bias is about
	// 2% per character, irrelevant for identifiers.
	for i, b := range buf {
		buf[i] = idCharset[int(b)%len(idCharset)]
	}
	return completionIDPrefix + string(buf)
}

// ValidateCompletionID reports whether id has the canonical shape.
func ValidateCompletionID(id string) bool {
	return completionIDPattern.MatchString(id)
}
