package metadata

import "errors"

// Schema is the statically declared object model the registries are built from.
type Schema struct {
	Types []*TypeDef `yaml:"types" json:"types"`

	index map[string]*TypeDef
}

// NewSchema indexes and validates the given type definitions.
func NewSchema(types ...*TypeDef) (*Schema, error) {
	s := &Schema{Types: types}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Type returns the declared type with the given name, or nil.
func (s *Schema) Type(name string) *TypeDef {
	return s.index[name]
}

// Entities returns the concrete entity types in declaration order.
func (s *Schema) Entities() []*TypeDef {
	var out []*TypeDef
	for _, t := range s.Types {
		if t != nil && t.IsEntity() {
			out = append(out, t)
		}
	}
	return out
}

// Assignable reports whether sub is super or extends it, directly or transitively.
func (s *Schema) Assignable(sub, super string) bool {
	if sub == super {
		return s.index[sub] != nil
	}
	t := s.index[sub]
	if t == nil {
		return false
	}
	for _, parent := range t.Extends {
		if s.Assignable(parent, super) {
			return true
		}
	}
	return false
}

// Members returns every member visible on a type: inherited members first,
// in declaration order, each tagged with its declaring type.
func (s *Schema) Members(typeName string) []DeclaredMember {
	var out []DeclaredMember
	s.collectMembers(typeName, make(map[string]bool), make(map[string]bool), &out)
	return out
}

func (s *Schema) collectMembers(name string, visited, seen map[string]bool, out *[]DeclaredMember) {
	if visited[name] {
		return
	}
	visited[name] = true
	t := s.index[name]
	if t == nil {
		return
	}
	for _, parent := range t.Extends {
		s.collectMembers(parent, visited, seen, out)
	}
	for _, m := range t.Members {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		*out = append(*out, DeclaredMember{Declarer: t.Name, Member: m})
	}
}

// FindMember looks a member up by name on a type, including inherited members.
func (s *Schema) FindMember(typeName, member string) (DeclaredMember, bool) {
	for _, dm := range s.Members(typeName) {
		if dm.Member.Name == member {
			return dm, true
		}
	}
	return DeclaredMember{}, false
}

// Validate indexes the types and checks the schema for errors that would make
// it impossible to index. All problems are reported together.
func (s *Schema) Validate() error {
	var errs []error
	s.index = make(map[string]*TypeDef, len(s.Types))
	for _, t := range s.Types {
		if t == nil {
			continue
		}
		switch {
		case t.Name == "":
			errs = append(errs, configErrorf("schema", "type with empty name"))
			continue
		case !isIdentifier(t.Name):
			errs = append(errs, configErrorf(t.Name, "type name is not an identifier"))
			continue
		case t.Name == Identity.Type:
			errs = append(errs, configErrorf(t.Name, "type name is reserved"))
			continue
		}
		if _, ok := LookupScalar(t.Name); ok {
			errs = append(errs, configErrorf(t.Name, "type name shadows a scalar type"))
			continue
		}
		if _, dup := s.index[t.Name]; dup {
			errs = append(errs, configErrorf(t.Name, "type declared more than once"))
			continue
		}
		s.index[t.Name] = t
		for i := range t.Members {
			if t.Members[i].Kind == "" {
				t.Members[i].Kind = MemberProperty
			}
		}
	}

	for _, t := range s.Types {
		if t == nil || s.index[t.Name] != t {
			continue
		}
		errs = append(errs, s.validateType(t)...)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := s.checkCycles(); err != nil {
		return err
	}

	for _, t := range s.Types {
		if t == nil {
			continue
		}
		errs = append(errs, s.validateMembers(t)...)
	}
	return errors.Join(errs...)
}

func (s *Schema) validateType(t *TypeDef) []error {
	var errs []error
	switch t.Kind {
	case KindEntity, KindInterface, KindValue:
		if len(t.Constants) > 0 {
			errs = append(errs, configErrorf(t.Name, "only enum types declare constants"))
		}
	case KindEnum:
		if len(t.Constants) == 0 {
			errs = append(errs, configErrorf(t.Name, "enum declares no constants"))
		}
		if len(t.Members) > 0 || len(t.Extends) > 0 {
			errs = append(errs, configErrorf(t.Name, "enum types cannot declare members or supertypes"))
		}
		seen := make(map[string]bool, len(t.Constants))
		for _, c := range t.Constants {
			if seen[c] {
				errs = append(errs, configErrorf(t.Name, "constant %q declared more than once", c))
			}
			seen[c] = true
		}
	default:
		errs = append(errs, configErrorf(t.Name, "unknown type kind %q", t.Kind))
		return errs
	}

	for _, parent := range t.Extends {
		p := s.index[parent]
		if p == nil {
			errs = append(errs, configErrorf(t.Name, "extends unknown type %q", parent))
			continue
		}
		if !canExtend(t.Kind, p.Kind) {
			errs = append(errs, configErrorf(t.Name, "%s type cannot extend %s type %q", t.Kind, p.Kind, parent))
		}
	}
	return errs
}

func canExtend(child, parent TypeKind) bool {
	switch child {
	case KindEntity:
		return parent == KindEntity || parent == KindInterface
	case KindInterface:
		return parent == KindInterface
	case KindValue:
		return parent == KindValue
	default:
		return false
	}
}

func (s *Schema) checkCycles() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(s.index))
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case inProgress:
			return configErrorf(name, "inheritance cycle")
		case done:
			return nil
		}
		state[name] = inProgress
		for _, parent := range s.index[name].Extends {
			if err := visit(parent); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, t := range s.Types {
		if t == nil {
			continue
		}
		if err := visit(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) validateMembers(t *TypeDef) []error {
	var errs []error
	inherited := make(map[string]string)
	for _, parent := range t.Extends {
		for _, dm := range s.Members(parent) {
			inherited[dm.Member.Name] = dm.Declarer
		}
	}

	own := make(map[string]bool, len(t.Members))
	for _, m := range t.Members {
		subject := t.Name + "." + m.Name
		switch {
		case !isIdentifier(m.Name):
			errs = append(errs, configErrorf(subject, "member name is not an identifier"))
			continue
		case m.Name == IdentityMember:
			errs = append(errs, configErrorf(subject, "member name is reserved"))
			continue
		case own[m.Name]:
			errs = append(errs, configErrorf(subject, "member declared more than once"))
			continue
		}
		own[m.Name] = true
		if declarer, ok := inherited[m.Name]; ok {
			errs = append(errs, configErrorf(subject, "member already declared by %s", declarer))
			continue
		}

		expr, err := ParseTypeExpr(m.Type)
		if err != nil {
			errs = append(errs, configErrorf(subject, "%v", err))
			continue
		}

		switch m.Kind {
		case MemberProperty:
			if _, ok := LookupScalar(expr.Base); ok {
				continue
			}
			target := s.index[expr.Base]
			switch {
			case target == nil:
				errs = append(errs, configErrorf(subject, "unknown type %q", expr.Base))
			case target.IsEntityLike():
				errs = append(errs, configErrorf(subject, "property cannot hold %s type %q, declare an association", target.Kind, expr.Base))
			}
		case MemberAssociation, MemberManyAssociation:
			if t.Kind == KindValue {
				errs = append(errs, configErrorf(subject, "value types may only declare properties"))
				continue
			}
			if expr.Depth() > 0 {
				errs = append(errs, configErrorf(subject, "association type cannot be a collection"))
				continue
			}
			target := s.index[expr.Base]
			if target == nil || !target.IsEntityLike() {
				errs = append(errs, configErrorf(subject, "association must reference an entity or interface type, got %q", expr.Base))
			}
		default:
			errs = append(errs, configErrorf(subject, "unknown member kind %q", m.Kind))
		}
	}
	return errs
}
