//go:build !linux

package platform

import "os"

type uringReader struct{ AsyncReader }

func newURingReader(_ *os.File, _ int) (*uringReader, error) {
	return nil, errIOURingUnsupported
}

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool {
	return false
}
