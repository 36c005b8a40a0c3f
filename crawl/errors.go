package crawl

import "errors"

var (
	// ErrUnsupportedDescriptor indicates an element kind was paired with a
	// descriptor variant that has no entry in the resolution table. The
	// engine is never consulted for such a pair.
	ErrUnsupportedDescriptor = errors.New("unsupported descriptor for element kind")

	// ErrNodeNotFound indicates the engine query ran and matched nothing.
	ErrNodeNotFound = errors.New("node not found")

	// ErrTypeMismatch indicates the current scope node cannot accept the
	// attempted action, such as typing into a non-input element.
	ErrTypeMismatch = errors.New("element type mismatch")
)
