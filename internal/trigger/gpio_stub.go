//go:build !linux || (!arm && !arm64)

package trigger

import "github.com/pkg/errors"

func openGPIO(pin int, activeLow bool) (input, error) {
	return nil, errors.New("trigger: gpio unsupported on this platform")
}

var openGPIOFn = openGPIO
