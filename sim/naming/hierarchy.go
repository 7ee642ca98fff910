package naming

import "fmt"

// ObjectID identifies an object inside a Hierarchy.
type ObjectID int

// NoObject is the parent of root objects.
const NoObject ObjectID = -1

type object struct {
	name     string
	fqn      string
	parent   ObjectID
	children []ObjectID
	removed  bool
	pinned   bool
}

// A Hierarchy is the ownership tree of the objects in a simulation. Parents
// own their children; a child only refers back to its parent by ID.
type Hierarchy struct {
	objects []object
	byFQN   map[string]ObjectID
}

// NewHierarchy creates an empty Hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		byFQN: make(map[string]ObjectID),
	}
}

// Add creates an object named elem under parent. Use NoObject as the parent
// to create a root. It panics if the name is invalid, the parent does not
// exist, or a sibling already has the same name.
func (h *Hierarchy) Add(parent ObjectID, elem string) ObjectID {
	ElementMustBeValid(elem)

	fqn := elem
	if parent != NoObject {
		h.mustExist(parent)
		fqn = BuildName(h.objects[parent].fqn, elem)
	}

	if _, dup := h.byFQN[fqn]; dup {
		panic(fmt.Sprintf("object %s already exists", fqn))
	}

	id := ObjectID(len(h.objects))
	h.objects = append(h.objects, object{
		name:   elem,
		fqn:    fqn,
		parent: parent,
	})
	h.byFQN[fqn] = id

	if parent != NoObject {
		p := &h.objects[parent]
		p.children = append(p.children, id)
	}

	return id
}

// Pin marks the object as referenced from outside the hierarchy. A pinned
// object, and any ancestor of it, cannot be removed.
func (h *Hierarchy) Pin(id ObjectID) {
	h.mustExist(id)
	h.objects[id].pinned = true
}

// IsPinned tells whether the object is pinned.
func (h *Hierarchy) IsPinned(id ObjectID) bool {
	h.mustExist(id)
	return h.objects[id].pinned
}

// Remove deletes the object and all its descendants and unlinks it from its
// parent's children. It panics if the object or a descendant is pinned.
func (h *Hierarchy) Remove(id ObjectID) {
	h.mustExist(id)

	if pinned, ok := h.findPinned(id); ok {
		panic(fmt.Sprintf("cannot remove %s, %s is in use",
			h.objects[id].fqn, h.objects[pinned].fqn))
	}

	parent := h.objects[id].parent
	if parent != NoObject {
		p := &h.objects[parent]
		for i, c := range p.children {
			if c == id {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
	}

	h.removeSubtree(id)
}

func (h *Hierarchy) findPinned(id ObjectID) (ObjectID, bool) {
	if h.objects[id].pinned {
		return id, true
	}

	for _, c := range h.objects[id].children {
		if pinned, ok := h.findPinned(c); ok {
			return pinned, true
		}
	}

	return NoObject, false
}

func (h *Hierarchy) removeSubtree(id ObjectID) {
	o := &h.objects[id]
	for _, c := range o.children {
		h.removeSubtree(c)
	}

	o.children = nil
	o.removed = true
	delete(h.byFQN, o.fqn)
}

// Exists tells whether id refers to a live object.
func (h *Hierarchy) Exists(id ObjectID) bool {
	return id >= 0 && int(id) < len(h.objects) && !h.objects[id].removed
}

// Name returns the element name of the object.
func (h *Hierarchy) Name(id ObjectID) string {
	h.mustExist(id)
	return h.objects[id].name
}

// FQN returns the fully qualified name of the object, from the root down.
func (h *Hierarchy) FQN(id ObjectID) string {
	h.mustExist(id)
	return h.objects[id].fqn
}

// Parent returns the parent of the object. The second return value is false
// for roots.
func (h *Hierarchy) Parent(id ObjectID) (ObjectID, bool) {
	h.mustExist(id)

	p := h.objects[id].parent

	return p, p != NoObject
}

// Children returns a copy of the object's children, in creation order.
func (h *Hierarchy) Children(id ObjectID) []ObjectID {
	h.mustExist(id)

	children := make([]ObjectID, len(h.objects[id].children))
	copy(children, h.objects[id].children)

	return children
}

// Lookup finds an object by its fully qualified name.
func (h *Hierarchy) Lookup(fqn string) (ObjectID, bool) {
	id, ok := h.byFQN[fqn]
	return id, ok
}

// Roots returns the live root objects in creation order.
func (h *Hierarchy) Roots() []ObjectID {
	var roots []ObjectID

	for i, o := range h.objects {
		if !o.removed && o.parent == NoObject {
			roots = append(roots, ObjectID(i))
		}
	}

	return roots
}

// Len returns the number of live objects.
func (h *Hierarchy) Len() int {
	return len(h.byFQN)
}

func (h *Hierarchy) mustExist(id ObjectID) {
	if !h.Exists(id) {
		panic(fmt.Sprintf("object %d does not exist", id))
	}
}
