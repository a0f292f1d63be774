package energy

// Meter reports accumulated energy in microjoules. Readings never decrease
// between Init and Finish.
type Meter interface {
	Init() error
	Read() (uint64, error)
	Finish() error
	// Source describes where readings come from
	Source() string
}

// Factory produces an uninitialized Meter.
type Factory func() (Meter, error)
