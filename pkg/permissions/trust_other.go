//go:build !darwin

package permissions

func trusted(bool) bool { return false }
