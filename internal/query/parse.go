package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"qindex/internal/metadata"
)

// Parse reads a textual predicate over members of resultType, for example
//
//	placeOfBirth.name == "Kuala Lumpur" && yearOfBirth >= 1973
//	"programming" in interests || hasAll(tags, ["a", "b"])
//	not (email == nil) and name matches "^J"
//	address == {street: "Jalan 1", zipCode: "50000"}
//
// The grammar is the expr language; only the constructs above, isNull,
// isNotNull, date and datetime are accepted. An empty text yields a nil
// predicate, which selects every entity of the type.
func Parse(reg *metadata.Registry, resultType, text string) (Predicate, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if !reg.Types().Known(resultType) {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnknownType, resultType)
	}
	tree, err := parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	p := &textParser{reg: reg, root: resultType}
	return p.predicate(tree.Node)
}

// ParseOrder reads "name desc, yearOfBirth" into order specs.
func ParseOrder(reg *metadata.Registry, resultType, text string) ([]OrderSpec, error) {
	var specs []OrderSpec
	for _, term := range strings.Split(text, ",") {
		fields := strings.Fields(term)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 2 {
			return nil, fmt.Errorf("%w: order term %q", ErrSyntax, strings.TrimSpace(term))
		}
		spec := OrderSpec{}
		if len(fields) == 2 {
			switch strings.ToLower(fields[1]) {
			case "asc":
			case "desc":
				spec.Descending = true
			default:
				return nil, fmt.Errorf("%w: order direction %q", ErrSyntax, fields[1])
			}
		}
		path, err := ResolvePath(reg.Schema(), resultType, fields[0])
		if err != nil {
			return nil, err
		}
		spec.Path = path
		specs = append(specs, spec)
	}
	return specs, nil
}

type textParser struct {
	reg  *metadata.Registry
	root string
}

func (p *textParser) predicate(node ast.Node) (Predicate, error) {
	switch n := node.(type) {
	case *ast.ChainNode:
		return p.predicate(n.Node)

	case *ast.UnaryNode:
		if n.Operator != "!" && n.Operator != "not" {
			return nil, syntaxError(node, "unexpected operator %q", n.Operator)
		}
		inner, err := p.predicate(n.Node)
		if err != nil {
			return nil, err
		}
		return Not{Operand: inner}, nil

	case *ast.BinaryNode:
		return p.binary(n)

	case *ast.CallNode, *ast.BuiltinNode:
		return p.call(node)

	default:
		return nil, syntaxError(node, "expected a condition")
	}
}

func (p *textParser) binary(n *ast.BinaryNode) (Predicate, error) {
	switch n.Operator {
	case "&&", "and", "||", "or":
		left, err := p.predicate(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.predicate(n.Right)
		if err != nil {
			return nil, err
		}
		if n.Operator == "&&" || n.Operator == "and" {
			return And{Left: left, Right: right}, nil
		}
		return Or{Left: left, Right: right}, nil

	case "==", "!=", "<", "<=", ">", ">=":
		return p.comparison(n)

	case "matches":
		path, err := p.path(n.Left)
		if err != nil {
			return nil, err
		}
		re, ok := n.Right.(*ast.StringNode)
		if !ok {
			return nil, syntaxError(n.Right, "matches needs a string pattern")
		}
		return Matches{Path: path, Regex: re.Value}, nil

	case "in":
		return p.in(n)

	default:
		return nil, syntaxError(n, "unsupported operator %q", n.Operator)
	}
}

var flipped = map[Op]Op{OpEq: OpEq, OpNe: OpNe, OpLt: OpGt, OpLe: OpGe, OpGt: OpLt, OpGe: OpLe}

func (p *textParser) comparison(n *ast.BinaryNode) (Predicate, error) {
	var op Op
	switch n.Operator {
	case "==":
		op = OpEq
	case "!=":
		op = OpNe
	case "<":
		op = OpLt
	case "<=":
		op = OpLe
	case ">":
		op = OpGt
	case ">=":
		op = OpGe
	}

	pathNode, litNode := n.Left, n.Right
	if !isPath(pathNode) {
		pathNode, litNode = n.Right, n.Left
		op = flipped[op]
	}
	path, err := p.path(pathNode)
	if err != nil {
		return nil, err
	}
	value, err := p.literal(litNode)
	if err != nil {
		return nil, err
	}

	if value == nil {
		switch op {
		case OpEq:
			return p.nullPredicate(path, true), nil
		case OpNe:
			return p.nullPredicate(path, false), nil
		}
	}
	return Comparison{Op: op, Path: path, Value: value}, nil
}

// in maps "literal in path" to containment and "path in [..]" to a disjunction.
func (p *textParser) in(n *ast.BinaryNode) (Predicate, error) {
	if list, ok := n.Right.(*ast.ArrayNode); ok && isPath(n.Left) {
		path, err := p.path(n.Left)
		if err != nil {
			return nil, err
		}
		var alternatives []Predicate
		for _, item := range list.Nodes {
			v, err := p.literal(item)
			if err != nil {
				return nil, err
			}
			alternatives = append(alternatives, Eq(path, v))
		}
		if len(alternatives) == 0 {
			return nil, syntaxError(n, "empty list after in")
		}
		return AnyOf(alternatives...), nil
	}

	path, err := p.path(n.Right)
	if err != nil {
		return nil, err
	}
	value, err := p.literal(n.Left)
	if err != nil {
		return nil, err
	}
	if d, err := p.reg.Describe(path.Last()); err == nil && d.Kind == metadata.ManyAssociation {
		identity, ok := value.(string)
		if !ok {
			return nil, syntaxError(n.Left, "many-associations contain identities")
		}
		return ManyAssociationContains{Path: path, Identity: identity}, nil
	}
	return Contains{Path: path, Value: value}, nil
}

func (p *textParser) call(node ast.Node) (Predicate, error) {
	name, args := callee(node)
	switch name {
	case "isNull", "isNotNull":
		if len(args) != 1 {
			return nil, syntaxError(node, "%s takes one path", name)
		}
		path, err := p.path(args[0])
		if err != nil {
			return nil, err
		}
		return p.nullPredicate(path, name == "isNull"), nil

	case "hasAll":
		if len(args) != 2 {
			return nil, syntaxError(node, "hasAll takes a path and a list")
		}
		path, err := p.path(args[0])
		if err != nil {
			return nil, err
		}
		list, ok := args[1].(*ast.ArrayNode)
		if !ok {
			return nil, syntaxError(args[1], "hasAll needs a list literal")
		}
		values := make([]any, 0, len(list.Nodes))
		for _, item := range list.Nodes {
			v, err := p.literal(item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ContainsAll{Path: path, Values: values}, nil

	default:
		return nil, syntaxError(node, "unknown function %q", name)
	}
}

// nullPredicate picks the property or association variant from the
// member's descriptor. Unindexed members fall back to the property variant
// and fail at compile time.
func (p *textParser) nullPredicate(path Path, isNull bool) Predicate {
	assoc := false
	if d, err := p.reg.Describe(path.Last()); err == nil && d.Kind != metadata.Property {
		assoc = true
	}
	switch {
	case assoc && isNull:
		return AssociationIsNull{Path: path}
	case assoc:
		return AssociationIsNotNull{Path: path}
	case isNull:
		return PropertyIsNull{Path: path}
	default:
		return PropertyIsNotNull{Path: path}
	}
}

func (p *textParser) path(node ast.Node) (Path, error) {
	dotted, ok := dottedName(node)
	if !ok {
		return Path{}, syntaxError(node, "expected a member path")
	}
	return ResolvePath(p.reg.Schema(), p.root, dotted)
}

func isPath(node ast.Node) bool {
	_, ok := dottedName(node)
	return ok
}

func dottedName(node ast.Node) (string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return n.Value, true
	case *ast.ChainNode:
		return dottedName(n.Node)
	case *ast.MemberNode:
		prop, ok := n.Property.(*ast.StringNode)
		if !ok || n.Method {
			return "", false
		}
		head, ok := dottedName(n.Node)
		if !ok {
			return "", false
		}
		return head + "." + prop.Value, true
	default:
		return "", false
	}
}

func (p *textParser) literal(node ast.Node) (any, error) {
	switch n := node.(type) {
	case *ast.NilNode:
		return nil, nil
	case *ast.StringNode:
		return n.Value, nil
	case *ast.IntegerNode:
		return int64(n.Value), nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.BoolNode:
		return n.Value, nil
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			break
		}
		v, err := p.literal(n.Node)
		if err != nil {
			return nil, err
		}
		if n.Operator == "+" {
			return v, nil
		}
		switch num := v.(type) {
		case int64:
			return -num, nil
		case float64:
			return -num, nil
		}
	case *ast.MapNode:
		value := make(Value, len(n.Pairs))
		for _, pair := range n.Pairs {
			pn, ok := pair.(*ast.PairNode)
			if !ok {
				return nil, syntaxError(pair, "expected key: value")
			}
			key, ok := pn.Key.(*ast.StringNode)
			if !ok {
				return nil, syntaxError(pn.Key, "member names must be identifiers or strings")
			}
			v, err := p.literal(pn.Value)
			if err != nil {
				return nil, err
			}
			value[key.Value] = v
		}
		return value, nil
	case *ast.CallNode, *ast.BuiltinNode:
		return dateLiteral(node)
	}
	return nil, syntaxError(node, "expected a literal")
}

func dateLiteral(node ast.Node) (any, error) {
	name, args := callee(node)
	if name != "date" && name != "datetime" {
		return nil, syntaxError(node, "unknown function %q", name)
	}
	if len(args) != 1 {
		return nil, syntaxError(node, "%s takes one string", name)
	}
	s, ok := args[0].(*ast.StringNode)
	if !ok {
		return nil, syntaxError(node, "%s takes one string", name)
	}
	layout := time.RFC3339Nano
	if name == "date" {
		layout = time.DateOnly
	}
	t, err := time.Parse(layout, s.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s(%q): %v", ErrSyntax, name, s.Value, err)
	}
	if name == "date" {
		return Date(t.Date()), nil
	}
	return t.UTC(), nil
}

func callee(node ast.Node) (string, []ast.Node) {
	switch n := node.(type) {
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			return id.Value, n.Arguments
		}
	case *ast.BuiltinNode:
		return n.Name, n.Arguments
	}
	return "", nil
}

func syntaxError(node ast.Node, format string, args ...any) error {
	loc := node.Location()
	return fmt.Errorf("%w: %s at offset %d", ErrSyntax, fmt.Sprintf(format, args...), loc.From)
}
