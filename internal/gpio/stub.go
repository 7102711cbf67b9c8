//go:build !linux

package gpio

import "errors"

// RealLister is not available on non-Linux platforms.
type RealLister struct {
	Chips []string
}

// NewRealLister returns a lister that always fails on non-Linux platforms.
func NewRealLister() *RealLister {
	return &RealLister{}
}

// Names is not implemented on non-Linux platforms.
func (l *RealLister) Names() ([]string, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
