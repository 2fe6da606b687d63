package security

import "sync"

// Credential is a secret that can be used at most once. The first Take
// hands out the value and wipes the stored copy; every later Take gets
// nothing.
//
// A nil *Credential is valid and empty.
type Credential struct {
	mu   sync.Mutex
	data []byte
}

// NewCredential copies secret into a new Credential. An empty secret
// yields nil.
func NewCredential(secret []byte) *Credential {
	if len(secret) == 0 {
		return nil
	}
	data := make([]byte, len(secret))
	copy(data, secret)
	return &Credential{data: data}
}

// Take returns the secret and consumes the credential. ok is false if the
// credential was empty or already taken.
func (c *Credential) Take() (secret string, ok bool) {
	if c == nil {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		return "", false
	}
	secret = string(c.data)
	WipeBytes(c.data)
	c.data = nil
	return secret, true
}

// Available reports whether Take would return a secret.
func (c *Credential) Available() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data != nil
}

// Wipe discards the secret without using it.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	WipeBytes(c.data)
	c.data = nil
}
