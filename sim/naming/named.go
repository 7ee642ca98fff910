// Package naming provides hierarchical names and the object tree that owns
// every kernel-managed element of a simulation.
package naming

// Named describes an object that has a name.
type Named interface {
	// Name returns the fully qualified name of the object.
	Name() string
}
