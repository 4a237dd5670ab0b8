package query

import "fmt"

// Predicate is a boolean expression over entity members. The set of
// implementations is closed; the compiler switches over all of them.
type Predicate interface {
	predicate()
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

type (
	And struct {
		Left, Right Predicate
	}

	Or struct {
		Left, Right Predicate
	}

	Not struct {
		Operand Predicate
	}

	// Comparison compares the member at Path with a literal. A nil literal
	// turns Eq and Ne into null checks.
	Comparison struct {
		Op    Op
		Path  Path
		Value any
	}

	// Matches tests the member at Path against a regular expression.
	Matches struct {
		Path  Path
		Regex string
	}

	PropertyIsNull struct {
		Path Path
	}

	PropertyIsNotNull struct {
		Path Path
	}

	AssociationIsNull struct {
		Path Path
	}

	AssociationIsNotNull struct {
		Path Path
	}

	// ManyAssociationContains holds when the many-association at Path
	// references the entity with the given identity.
	ManyAssociationContains struct {
		Path     Path
		Identity string
	}

	// Contains holds when any item of the collection property at Path equals Value.
	Contains struct {
		Path  Path
		Value any
	}

	// ContainsAll holds when the collection at Path contains every distinct
	// value. An empty value list holds whenever the collection is present.
	ContainsAll struct {
		Path   Path
		Values []any
	}
)

func (And) predicate()                     {}
func (Or) predicate()                      {}
func (Not) predicate()                     {}
func (Comparison) predicate()              {}
func (Matches) predicate()                 {}
func (PropertyIsNull) predicate()          {}
func (PropertyIsNotNull) predicate()       {}
func (AssociationIsNull) predicate()       {}
func (AssociationIsNotNull) predicate()    {}
func (ManyAssociationContains) predicate() {}
func (Contains) predicate()                {}
func (ContainsAll) predicate()             {}

func Eq(p Path, v any) Predicate { return Comparison{Op: OpEq, Path: p, Value: v} }
func Ne(p Path, v any) Predicate { return Comparison{Op: OpNe, Path: p, Value: v} }
func Gt(p Path, v any) Predicate { return Comparison{Op: OpGt, Path: p, Value: v} }
func Ge(p Path, v any) Predicate { return Comparison{Op: OpGe, Path: p, Value: v} }
func Lt(p Path, v any) Predicate { return Comparison{Op: OpLt, Path: p, Value: v} }
func Le(p Path, v any) Predicate { return Comparison{Op: OpLe, Path: p, Value: v} }

// AllOf folds predicates with And. It returns nil for an empty list.
func AllOf(preds ...Predicate) Predicate {
	return fold(preds, func(l, r Predicate) Predicate { return And{Left: l, Right: r} })
}

// AnyOf folds predicates with Or. It returns nil for an empty list.
func AnyOf(preds ...Predicate) Predicate {
	return fold(preds, func(l, r Predicate) Predicate { return Or{Left: l, Right: r} })
}

func Negate(p Predicate) Predicate { return Not{Operand: p} }

func fold(preds []Predicate, join func(l, r Predicate) Predicate) Predicate {
	var out Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = join(out, p)
	}
	return out
}
