package hbsc

type resourceKind uint8

const (
	resWindow resourceKind = iota
	resLog
	resMeter
)

func (k resourceKind) String() string {
	switch k {
	case resWindow:
		return "window"
	case resLog:
		return "log"
	case resMeter:
		return "meter"
	}
	return "unknown"
}

type resource struct {
	kind     resourceKind
	release  func() error
	released bool
}

// resources tracks what a session has acquired. Every release runs at most
// once, whether triggered by name or by unwind.
type resources struct {
	held []*resource
}

func (r *resources) acquire(kind resourceKind, release func() error) {
	r.held = append(r.held, &resource{kind: kind, release: release})
}

func (r *resources) holds(kind resourceKind) bool {
	for _, res := range r.held {
		if res.kind == kind && !res.released {
			return true
		}
	}
	return false
}

// release frees the named resource if it is still held.
func (r *resources) release(kind resourceKind) error {
	for _, res := range r.held {
		if res.kind == kind && !res.released {
			res.released = true
			return res.release()
		}
	}
	return nil
}

// unwind releases everything still held, newest first.
func (r *resources) unwind() map[resourceKind]error {
	failed := make(map[resourceKind]error)
	for i := len(r.held) - 1; i >= 0; i-- {
		res := r.held[i]
		if res.released {
			continue
		}
		res.released = true
		if err := res.release(); err != nil {
			failed[res.kind] = err
		}
	}
	return failed
}
