//go:build !darwin

package procinfo

func lookupPlatform(int32) (Info, error) {
	return Info{}, ErrUnsupported
}
