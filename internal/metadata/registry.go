package metadata

import (
	"fmt"
	"sort"
)

// Registry maps every indexed qualified name to its descriptor. A Registry is
// immutable once Build returns it and may be shared without locking.
type Registry struct {
	schema      *Schema
	prefix      string
	descriptors map[QualifiedName]*Descriptor
	order       []QualifiedName
	members     map[string][]QualifiedName // entity or value type -> direct members, storage order
	enums       map[EnumConstant]int
	classes     map[string]int
	types       *TypeRegistry
}

// Schema returns the object model the registry was built from.
func (r *Registry) Schema() *Schema { return r.schema }

// Types returns the entity type registry.
func (r *Registry) Types() *TypeRegistry { return r.types }

// TablePrefix returns the prefix used for qualified-name table names.
func (r *Registry) TablePrefix() string { return r.prefix }

// Describe returns the descriptor of a qualified name.
func (r *Registry) Describe(q QualifiedName) (*Descriptor, error) {
	d, ok := r.descriptors[q]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQName, q)
	}
	return d, nil
}

// Descriptors returns all descriptors in table allocation order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.order))
	for _, q := range r.order {
		out = append(out, r.descriptors[q])
	}
	return out
}

// EntityMembers returns the queryable members of an entity type in storage
// order: properties, then associations, then many-associations.
func (r *Registry) EntityMembers(typeName string) []QualifiedName {
	return r.members[typeName]
}

// ValueMembers returns the queryable properties of a value type.
func (r *Registry) ValueMembers(valueType string) []QualifiedName {
	return r.members[valueType]
}

// EnumID returns the lookup id of an enum constant.
func (r *Registry) EnumID(enumType, constant string) (int, bool) {
	id, ok := r.enums[EnumConstant{Type: enumType, Value: constant}]
	return id, ok
}

// Enums returns every registered enum constant sorted by id.
func (r *Registry) Enums() []EnumConstant {
	out := make([]EnumConstant, 0, len(r.enums))
	for c := range r.enums {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return r.enums[out[i]] < r.enums[out[j]] })
	return out
}

// ClassID returns the id of a nested value type.
func (r *Registry) ClassID(valueType string) (int, bool) {
	id, ok := r.classes[valueType]
	return id, ok
}

// Snapshot returns the ids and table names that must be persisted.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		TypeIDs:    make(map[string]int, len(r.types.ids)),
		ClassIDs:   make(map[string]int, len(r.classes)),
		EnumIDs:    make(map[EnumConstant]int, len(r.enums)),
		TableNames: make(map[QualifiedName]string, len(r.descriptors)),
	}
	for k, v := range r.types.ids {
		s.TypeIDs[k] = v
	}
	for k, v := range r.classes {
		s.ClassIDs[k] = v
	}
	for k, v := range r.enums {
		s.EnumIDs[k] = v
	}
	for q, d := range r.descriptors {
		s.TableNames[q] = d.TableName
	}
	return s
}
