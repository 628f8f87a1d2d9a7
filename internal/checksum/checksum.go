// Package checksum computes the digest used to detect corruption or
// mismatch between an uploaded snapshot and its later re-verification.
//
// The algorithm is a fixed 32-bit polynomial rolling hash: both ends of the
// sync protocol must produce identical values for identical input, so the
// exact arithmetic below is part of the wire contract. It is not a
// cryptographic hash and provides no integrity guarantees against tampering.
package checksum

import (
	"strconv"
	"unicode/utf16"
)

// Sum returns the checksum of a serialized snapshot.
//
// For each UTF-16 code unit c of s, h = h*31 + c with 32-bit wraparound.
// The final value is interpreted as a signed 32-bit integer and its
// absolute value rendered in base 36.
func Sum(s string) string {
	var h uint32
	for _, r := range s {
		if r <= 0xFFFF {
			h = h*31 + uint32(r)
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			h = h*31 + uint32(u)
		}
	}
	v := int64(int32(h))
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
