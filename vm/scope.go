package vm

import "fmt"

// binding is one declared variable.
type binding struct {
	id    uint32
	value Value
}

// Scope is a fixed-capacity list of bindings scanned by identifier hash.
type Scope struct {
	bindings []binding
	capacity int
}

func newScope(capacity int) *Scope {
	return &Scope{bindings: make([]binding, 0, capacity), capacity: capacity}
}

func (s *Scope) find(id uint32) int {
	for i := range s.bindings {
		if s.bindings[i].id == id {
			return i
		}
	}
	return -1
}

// declare binds id in this scope and takes over v's pool reference.
// Redeclaring overwrites.
func (s *Scope) declare(id uint32, v Value) error {
	if i := s.find(id); i >= 0 {
		s.set(i, v)
		return nil
	}
	if len(s.bindings) >= s.capacity {
		release(v)
		return fmt.Errorf("%w: more than %d locals in scope", ErrCapacityExceeded, s.capacity)
	}
	s.bindings = append(s.bindings, binding{id: id, value: v})
	return nil
}

// Len returns the number of bindings.
func (s *Scope) Len() int {
	return len(s.bindings)
}

// set replaces binding i, releasing the value it held.
func (s *Scope) set(i int, v Value) {
	release(s.bindings[i].value)
	s.bindings[i].value = v
}

// release drops the pool references held by every binding.
func (s *Scope) release() {
	for i := range s.bindings {
		release(s.bindings[i].value)
		s.bindings[i].value = Value{}
	}
}
