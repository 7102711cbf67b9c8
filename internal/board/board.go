// Package board maps a device identifier to the PWM channel name the LED is
// wired to. The Edison family is ambiguous and needs a GPIO pin-name probe to
// tell the Arduino breakout from the bare module.
package board

import (
	"fmt"
	"strings"
	"sync"
)

// Variant is a supported board model.
type Variant string

const (
	EdisonArduino Variant = "edison_arduino"
	Edison        Variant = "edison"
	Rpi3          Variant = "rpi3"
	Nxp           Variant = "imx6ul"
)

// arduinoPinPrefix marks Arduino-breakout pin names (IO0, IO1, ...).
const arduinoPinPrefix = "IO"

// Channel returns the PWM channel name for v, or "" for an unknown variant.
func (v Variant) Channel() string {
	switch v {
	case EdisonArduino:
		return "IO6"
	case Edison:
		return "GP12"
	case Rpi3:
		return "PWM0"
	case Nxp:
		return "PWM7"
	default:
		return ""
	}
}

// UnsupportedBoardError is returned when a device identifier matches no known variant.
type UnsupportedBoardError struct {
	DeviceID string
}

func (e *UnsupportedBoardError) Error() string {
	return fmt.Sprintf("unsupported board %q", e.DeviceID)
}

// GPIOProbe lists the board's GPIO pin names in enumeration order.
type GPIOProbe func() ([]string, error)

// Resolver resolves a device to its PWM channel once and caches the result.
// Safe for concurrent use.
type Resolver struct {
	mu      sync.Mutex
	variant Variant // empty until the first successful Resolve
}

// NewResolver returns a Resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the PWM channel name for deviceID. The first successful
// call fixes the variant; later calls return it without probing, whatever
// deviceID they pass. probe is only called for the Edison family, at most
// once. Unknown identifiers fail with *UnsupportedBoardError and are not cached.
func (r *Resolver) Resolve(deviceID string, probe GPIOProbe) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.variant != "" {
		return r.variant.Channel(), nil
	}

	v, err := classify(deviceID, probe)
	if err != nil {
		return "", err
	}
	r.variant = v
	return v.Channel(), nil
}

// Variant returns the cached variant and whether resolution has happened.
func (r *Resolver) Variant() (Variant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.variant, r.variant != ""
}

func classify(deviceID string, probe GPIOProbe) (Variant, error) {
	switch Variant(deviceID) {
	case Rpi3, Nxp, EdisonArduino:
		return Variant(deviceID), nil
	case Edison:
		if probe == nil {
			return Edison, nil
		}
		names, err := probe()
		if err != nil {
			return "", fmt.Errorf("probe gpio names: %w", err)
		}
		if len(names) > 0 && strings.HasPrefix(names[0], arduinoPinPrefix) {
			return EdisonArduino, nil
		}
		return Edison, nil
	default:
		return "", &UnsupportedBoardError{DeviceID: deviceID}
	}
}
