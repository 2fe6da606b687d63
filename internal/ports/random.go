package ports

// Random is the source of window identifiers.
type Random interface {
	Read(b []byte) (n int, err error)
}
