package security

import (
	"crypto/rand"
)

// WipeBytes securely wipes a byte slice by overwriting with random data,
// then zeros.
func WipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	rand.Read(data)
	for i := range data {
		data[i] = 0
	}
}
