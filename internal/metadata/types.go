package metadata

import "sort"

// EntityType pairs a concrete entity type with its numeric id.
type EntityType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TypeRegistry assigns numeric ids to entity types and expands supertypes.
// Expansions are computed once, when the registry is built.
type TypeRegistry struct {
	ids        map[string]int
	names      map[int]string
	expansions map[string][]int
	order      []EntityType
}

func newTypeRegistry(schema *Schema, ids map[string]int) *TypeRegistry {
	t := &TypeRegistry{
		ids:        ids,
		names:      make(map[int]string, len(ids)),
		expansions: make(map[string][]int),
	}
	for _, e := range schema.Entities() {
		id := ids[e.Name]
		t.names[id] = e.Name
		t.order = append(t.order, EntityType{ID: id, Name: e.Name})
	}

	for _, declared := range schema.Types {
		if declared == nil || !declared.IsEntityLike() {
			continue
		}
		var expanded []int
		for _, e := range t.order {
			if schema.Assignable(e.Name, declared.Name) {
				expanded = append(expanded, e.ID)
			}
		}
		sort.Ints(expanded)
		t.expansions[declared.Name] = expanded
	}
	return t
}

// ID returns the id of a concrete entity type.
func (t *TypeRegistry) ID(name string) (int, bool) {
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the entity type registered under id.
func (t *TypeRegistry) Name(id int) (string, bool) {
	name, ok := t.names[id]
	return name, ok
}

// Expand returns the ids of every concrete entity type assignable to name,
// in ascending order. Unknown names expand to an empty slice.
func (t *TypeRegistry) Expand(name string) []int {
	ids := t.expansions[name]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

// Known returns true if name is a declared entity or interface type.
func (t *TypeRegistry) Known(name string) bool {
	_, ok := t.expansions[name]
	return ok
}

// Entities returns all registered entity types in declaration order.
func (t *TypeRegistry) Entities() []EntityType {
	out := make([]EntityType, len(t.order))
	copy(out, t.order)
	return out
}
