//go:build !linux

package ble

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrSystemUnsupported is returned where the host stack backend is not
// available.
var ErrSystemUnsupported = errors.New("ble: system backend requires linux")

// SystemRadio is only available on linux.
type SystemRadio struct{ Radio }

// OpenSystemRadio reports that the host stack backend is unavailable.
func OpenSystemRadio(id string) (*SystemRadio, error) {
	return nil, fmt.Errorf("%w (running on %s)", ErrSystemUnsupported, runtime.GOOS)
}
