package driver

import "fmt"

// ErrDuplicateBackend is returned by Registry.Register when the backend id
// is already registered.
type ErrDuplicateBackend struct{ BackendID string }

func (e *ErrDuplicateBackend) Error() string {
	return fmt.Sprintf("duplicate backend: %s", e.BackendID)
}

// ErrUnknownBackend is returned when a backend id has no registered
// adapter.
type ErrUnknownBackend struct{ BackendID string }

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("unknown backend: %s", e.BackendID)
}

// Registry is a name-keyed dictionary of adapter instances. It is
// single-writer configuration established at startup; callers arrange that
// registration completes before concurrent lookups begin, so Registry does
// not lock internally.
type Registry struct {
	byName map[string]Adapter
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Adapter)}
}

// Register adds an adapter under its own BackendID. It fails with
// ErrDuplicateBackend when that name is already registered.
func (r *Registry) Register(a Adapter) error {
	name := a.BackendID()
	if _, exists := r.byName[name]; exists {
		return &ErrDuplicateBackend{BackendID: name}
	}
	r.byName[name] = a
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the adapter registered under name, if any.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// List returns all registered backend ids in insertion order.
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Unregister removes name from the registry and reports whether it was
// present.
func (r *Registry) Unregister(name string) bool {
	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}
