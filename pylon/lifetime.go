package pylon

import "sync/atomic"

// lifetime tracks whether an owned object has been released, and how many
// times its contents have been replaced. Borrowed objects remember the
// generation they were taken at.
type lifetime struct {
	released atomic.Bool
	gen      atomic.Uint64
}

func (l *lifetime) alive() error {
	if l.released.Load() {
		return ErrReleased
	}
	return nil
}

// release marks l released. It reports false if it already was.
func (l *lifetime) release() bool {
	if l.released.Swap(true) {
		return false
	}
	l.gen.Add(1)
	return true
}

// renew invalidates everything borrowed so far.
func (l *lifetime) renew() {
	l.gen.Add(1)
}

func (l *lifetime) borrow() borrow {
	return borrow{owner: l, gen: l.gen.Load()}
}

// borrow is a reference to an owner's lifetime at a given generation.
type borrow struct {
	owner *lifetime
	gen   uint64
}

func (b borrow) valid() error {
	if b.owner.released.Load() {
		return ErrReleased
	}
	if b.owner.gen.Load() != b.gen {
		return ErrInvalidated
	}
	return nil
}
