package native

import "sync"

// Table maps handles to the objects a backend keeps on its side of the
// boundary. It is safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	objs   map[Handle]any
	nextID Handle
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{objs: make(map[Handle]any), nextID: 1}
}

// Register stores v and returns its handle.
func (t *Table) Register(v any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.objs[id] = v
	return id
}

// Lookup returns the object registered under h, or nil.
func (t *Table) Lookup(h Handle) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.objs[h]
}

// Unregister removes h. It reports whether h was registered.
func (t *Table) Unregister(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.objs[h]
	delete(t.objs, h)
	return ok
}

// Count returns the number of live handles. Used by leak checks in tests.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objs)
}

// Resolve looks up h and asserts its type, raising LogicalErrorException
// when h is unknown or refers to another kind of object.
func Resolve[T any](t *Table, h Handle, what string) T {
	v, ok := t.Lookup(h).(T)
	if !ok {
		panic(LogicalError("invalid %s handle %#x", what, uintptr(h)))
	}
	return v
}
