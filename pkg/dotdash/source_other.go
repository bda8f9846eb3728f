//go:build !darwin

package dotdash

import "errors"

// ErrUnsupported is returned where no multitouch backend exists.
var ErrUnsupported = errors.New("multitouch input unsupported on this platform")

// NewSource reports that multitouch frames are unavailable off macOS.
func NewSource() (Source, error) {
	return nil, ErrUnsupported
}
