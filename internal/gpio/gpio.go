// Package gpio lists GPIO line names with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Lister lists GPIO pin names.
type Lister interface {
	// Names returns the line names of every GPIO chip, chips in
	// enumeration order and lines in offset order. Unnamed lines are skipped.
	Names() ([]string, error)
}

// Probe adapts a Lister to the func shape board.Resolver expects.
func Probe(l Lister) func() ([]string, error) {
	return l.Names
}
