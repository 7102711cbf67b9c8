package gpio

// FakeLister is a test double that returns scripted line names.
type FakeLister struct {
	// Lines is returned by every call to Names.
	Lines []string

	// Err, if set, will be returned by Names.
	Err error

	// Calls counts invocations of Names.
	Calls int
}

// NewFakeLister creates a FakeLister with the given names.
func NewFakeLister(lines ...string) *FakeLister {
	return &FakeLister{Lines: lines}
}

// Names returns the scripted names.
func (f *FakeLister) Names() ([]string, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Lines, nil
}

// Reset clears the call count.
func (f *FakeLister) Reset() {
	f.Calls = 0
}
