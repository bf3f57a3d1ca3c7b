package util

import (
	"math/rand"
	"strings"
)

// ProvisionalIDPrefix marks locally issued element ids that the store has
// not replaced with authoritative ones yet.
const ProvisionalIDPrefix = "temp-"

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified
// length, for non-cryptographic identifiers.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateProvisionalID generates a locally unique element id carrying the
// provisional prefix. Store-issued ids never carry it, so the two are always
// distinguishable.
func GenerateProvisionalID() string {
	return GenerateRandomID(ProvisionalIDPrefix, 32)
}

// IsProvisionalID reports whether an id was issued locally rather than by
// the store.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalIDPrefix)
}
