package device

import (
	"fmt"
	"sort"
)

// Constructor builds a fresh driver instance.
type Constructor func() Driver

type registration struct {
	name string
	ctor Constructor
}

// Registry maps object IDs to driver constructors and model names to object
// IDs.
//
// A Registry is populated once at startup and read-only afterwards; lookups
// need no locking.
type Registry struct {
	models  map[string]ID
	drivers map[ID]registration
}

// NewRegistry creates a registry that knows every built-in model name but
// has no drivers.
func NewRegistry() *Registry {
	r := &Registry{
		models:  make(map[string]ID, len(builtinModels)),
		drivers: make(map[ID]registration),
	}
	for _, m := range builtinModels {
		r.models[m.name] = m.object
	}
	return r
}

// Register associates a driver constructor with an object ID and model name.
//
// A duplicate object ID, or a model name already bound to a different object
// ID, is a programming error and panics.
//
// Parameters:
//   - object: Family and model with index 0
//   - name: Model name as written in configuration
//   - ctor: Builds a new driver
func (r *Registry) Register(object ID, name string, ctor Constructor) {
	if !object.IsObjectID() {
		panic(fmt.Sprintf("device: register %s: index must be 0", object.Hex()))
	}
	if ctor == nil {
		panic(fmt.Sprintf("device: register %s: nil constructor", name))
	}
	if prev, ok := r.drivers[object]; ok {
		panic(fmt.Sprintf("device: object id %s registered twice (%s, %s)", object.Hex(), prev.name, name))
	}
	if bound, ok := r.models[name]; ok && bound != object {
		panic(fmt.Sprintf("device: model name %q already bound to %s", name, bound.Hex()))
	}

	r.models[name] = object
	r.drivers[object] = registration{name: name, ctor: ctor}
}

// ObjectIDForModelName resolves a configuration model name.
// Unknown names return InvalidID and false.
func (r *Registry) ObjectIDForModelName(name string) (ID, bool) {
	id, ok := r.models[name]
	if !ok {
		return InvalidID, false
	}
	return id, true
}

// ModelName returns the name registered for an identity's object ID.
func (r *Registry) ModelName(id ID) (string, bool) {
	object := id.ObjectID()
	for name, o := range r.models {
		if o == object {
			return name, true
		}
	}
	return "", false
}

// Create builds a new driver for object. The bool is false when no driver is
// registered for that family and model.
func (r *Registry) Create(object ID) (Driver, bool) {
	reg, ok := r.drivers[object.ObjectID()]
	if !ok {
		return nil, false
	}
	return reg.ctor(), true
}

// HasDriver reports whether a driver is registered for object.
func (r *Registry) HasDriver(object ID) bool {
	_, ok := r.drivers[object.ObjectID()]
	return ok
}

// Drivers returns the object IDs that have drivers, sorted.
func (r *Registry) Drivers() []ID {
	ids := make([]ID, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
