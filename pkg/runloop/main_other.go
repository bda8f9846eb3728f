//go:build !darwin

package runloop

// NewMain returns a portable loop where no native run loop exists.
func NewMain() Runner {
	return NewPortable()
}
