//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealLister reads line names from the GPIO character devices.
type RealLister struct {
	// Chips overrides the chips to scan; nil scans every /dev/gpiochip*.
	Chips []string
}

// NewRealLister creates a lister over all GPIO chips on the system.
func NewRealLister() *RealLister {
	return &RealLister{}
}

// Names returns the named lines of each chip.
func (l *RealLister) Names() ([]string, error) {
	chips := l.Chips
	if chips == nil {
		chips = gpiocdev.Chips()
	}
	if len(chips) == 0 {
		return nil, nil
	}

	var names []string
	for _, name := range chips {
		chipNames, err := lineNames(name)
		if err != nil {
			return nil, err
		}
		names = append(names, chipNames...)
	}
	return names, nil
}

func lineNames(chipName string) ([]string, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("breathing-led"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	defer chip.Close()

	var names []string
	for offset := 0; offset < chip.Lines(); offset++ {
		info, err := chip.LineInfo(offset)
		if err != nil {
			return nil, fmt.Errorf("line info %s:%d: %w", chipName, offset, err)
		}
		if info.Name != "" {
			names = append(names, info.Name)
		}
	}
	return names, nil
}
