//go:build !darwin

package events

// NewPlatform reports that only the Simulator is available off macOS.
func NewPlatform() (Platform, error) {
	return nil, ErrUnsupported
}
