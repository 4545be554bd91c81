package protocol

import (
	"fmt"
	"sort"
)

// Registry maps packet ids to constructors of empty typed packets.
//
// A Registry is populated once at startup and treated as read-only
// afterwards; lookups need no locking.
type Registry struct {
	defs map[ID]Def
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[ID]Def)}
}

// NewCatalogueRegistry creates a registry holding every catalogue packet type.
func NewCatalogueRegistry() *Registry {
	r := NewRegistry()
	for _, d := range Catalogue() {
		r.Register(d.ID, d.Name, d.New)
	}
	return r
}

// Register adds a packet type.
//
// Registering an id twice is a programming error and panics.
//
// Parameters:
//   - id: Packet id produced by the constructor
//   - name: Catalogue name used in logs
//   - ctor: Returns a fresh, empty packet of the concrete type
func (r *Registry) Register(id ID, name string, ctor func() Packet) {
	if ctor == nil {
		panic(fmt.Sprintf("protocol: nil constructor for %s", name))
	}
	if prev, ok := r.defs[id]; ok {
		panic(fmt.Sprintf("protocol: packet id %s registered twice (%s, %s)", id, prev.Name, name))
	}
	if got := ctor().ID(); got != id {
		panic(fmt.Sprintf("protocol: constructor for %s builds id %s, registered as %s", name, got, id))
	}
	r.defs[id] = Def{ID: id, Name: name, New: ctor}
}

// Create returns a fresh, empty packet for id. The bool is false when no
// type is registered; callers log and drop such packets.
func (r *Registry) Create(id ID) (Packet, bool) {
	d, ok := r.defs[id]
	if !ok {
		return nil, false
	}
	return d.New(), true
}

// Name returns the registered name for id, or its hex form.
func (r *Registry) Name(id ID) string {
	if d, ok := r.defs[id]; ok {
		return d.Name
	}
	return id.String()
}

// Decode reads the header of data, creates the matching packet and decodes
// into it.
//
// Returns:
//   - Packet: The decoded packet
//   - error: ErrUnknownPacket for unregistered ids, or any Decode error
func (r *Registry) Decode(data []byte) (Packet, error) {
	hdr, err := PeekHeader(data)
	if err != nil {
		return nil, err
	}
	pkt, ok := r.Create(hdr.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPacket, hdr.ID)
	}
	if err := pkt.Decode(data); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", r.Name(hdr.ID), err)
	}
	return pkt, nil
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered packet types.
func (r *Registry) Len() int { return len(r.defs) }
