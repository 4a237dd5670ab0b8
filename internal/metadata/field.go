package metadata

import (
	"fmt"
	"strings"
)

// MemberKind distinguishes properties from associations.
type MemberKind string

const (
	MemberProperty        MemberKind = "property"
	MemberAssociation     MemberKind = "association"
	MemberManyAssociation MemberKind = "many_association"
)

type Member struct {
	Name      string     `yaml:"name" json:"name"`
	Kind      MemberKind `yaml:"kind,omitempty" json:"kind,omitempty"`
	Type      string     `yaml:"type" json:"type"`
	Queryable *bool      `yaml:"queryable,omitempty" json:"queryable,omitempty"`
}

// IsQueryable returns true unless the member is explicitly excluded from indexing.
func (m Member) IsQueryable() bool {
	return m.Queryable == nil || *m.Queryable
}

// IsProperty returns true for property members (the default kind).
func (m Member) IsProperty() bool {
	return m.Kind == "" || m.Kind == MemberProperty
}

// ScalarKind is the final type of a property stored directly in a value column.
type ScalarKind string

const (
	ScalarString   ScalarKind = "string"
	ScalarInteger  ScalarKind = "integer"
	ScalarLong     ScalarKind = "long"
	ScalarDouble   ScalarKind = "double"
	ScalarBoolean  ScalarKind = "boolean"
	ScalarDateTime ScalarKind = "datetime"
)

var scalarKinds = map[string]ScalarKind{
	"string":   ScalarString,
	"integer":  ScalarInteger,
	"int":      ScalarInteger,
	"long":     ScalarLong,
	"double":   ScalarDouble,
	"float":    ScalarDouble,
	"boolean":  ScalarBoolean,
	"bool":     ScalarBoolean,
	"datetime": ScalarDateTime,
}

// LookupScalar resolves a scalar type name, accepting the common aliases.
func LookupScalar(name string) (ScalarKind, bool) {
	k, ok := scalarKinds[name]
	return k, ok
}

// CollectionKind is one level of collection nesting in a type expression.
type CollectionKind string

const (
	CollectionList CollectionKind = "list"
	CollectionSet  CollectionKind = "set"
)

// TypeExpr is a parsed member type: zero or more collection wrappers around a base type.
type TypeExpr struct {
	Collections []CollectionKind // outermost first
	Base        string
}

// Depth returns the collection nesting depth.
func (e TypeExpr) Depth() int {
	return len(e.Collections)
}

func (e TypeExpr) String() string {
	s := e.Base
	for i := len(e.Collections) - 1; i >= 0; i-- {
		s = string(e.Collections[i]) + "<" + s + ">"
	}
	return s
}

// ParseTypeExpr parses expressions like "string", "Address" or "list<set<integer>>".
func ParseTypeExpr(s string) (TypeExpr, error) {
	var expr TypeExpr
	rest := strings.TrimSpace(s)
	for {
		kind, inner, ok := unwrapCollection(rest)
		if !ok {
			break
		}
		expr.Collections = append(expr.Collections, kind)
		rest = inner
	}
	if !isIdentifier(rest) {
		return TypeExpr{}, fmt.Errorf("invalid type expression %q", s)
	}
	expr.Base = rest
	return expr, nil
}

func unwrapCollection(s string) (CollectionKind, string, bool) {
	for _, kind := range []CollectionKind{CollectionList, CollectionSet} {
		prefix := string(kind) + "<"
		if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ">") {
			return kind, strings.TrimSpace(s[len(prefix) : len(s)-1]), true
		}
	}
	return "", "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
