package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"qindex/internal/metadata"
)

const rootAlias = "t0"

// itemPattern matches the collection path of every item below the top row.
var itemPattern = "^" + regexp.QuoteMeta(metadata.CollectionRoot+metadata.CollectionSeparator)

// selectNothing is the condition of an empty row set.
var selectNothing = goqu.L("1 = 0")

func column(alias, name string) exp.IdentifierExpression {
	return goqu.I(alias + "." + name)
}

// sqlString renders s as a quoted SQL string literal.
func sqlString(s string) exp.LiteralExpression {
	return goqu.L("'" + strings.ReplaceAll(s, "'", "''") + "'")
}

func isNull(col exp.Expression) exp.Expression    { return goqu.L("? IS NULL", col) }
func isNotNull(col exp.Expression) exp.Expression { return goqu.L("? IS NOT NULL", col) }

type joinKind int

const (
	innerJoin joinKind = iota
	leftOuterJoin
)

type join struct {
	kind  joinKind
	table string
	alias string
	on    []exp.Expression
}

// fragment collects the joins of one leaf. Aliases t1, t2, ... are allocated
// in join order below the root alias t0.
type fragment struct {
	joins []join
	next  int
}

func newFragment() *fragment {
	return &fragment{next: 1}
}

func (f *fragment) alias() string {
	a := "t" + strconv.Itoa(f.next)
	f.next++
	return a
}

func (f *fragment) join(kind joinKind, table, alias string, on ...exp.Expression) {
	f.joins = append(f.joins, join{kind: kind, table: table, alias: alias, on: on})
}

// apply adds the collected joins to ds in order.
func (f *fragment) apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	for _, j := range f.joins {
		src := goqu.T(j.table).As(j.alias)
		if j.kind == leftOuterJoin {
			ds = ds.LeftOuterJoin(src, goqu.On(j.on...))
		} else {
			ds = ds.InnerJoin(src, goqu.On(j.on...))
		}
	}
	return ds
}

type leafKind int

const (
	leafComparison leafKind = iota // comparisons and Matches
	leafIsNull
	leafIsNotNull
	leafContainment // negated through EXCEPT
)

// joinStyle keeps absent members in the result exactly when the negated or
// null-testing condition should see them.
func joinStyle(kind leafKind, negated bool) joinKind {
	switch kind {
	case leafComparison, leafIsNotNull:
		if negated {
			return leftOuterJoin
		}
		return innerJoin
	case leafIsNull:
		if negated {
			return innerJoin
		}
		return leftOuterJoin
	default:
		return innerJoin
	}
}

// compare tests col against v with op, or with its complement when negated.
func compare(col exp.IdentifierExpression, op Op, negated bool, v any) exp.Expression {
	if negated {
		op = complement(op)
	}
	switch op {
	case OpNe:
		return col.Neq(v)
	case OpGt:
		return col.Gt(v)
	case OpGe:
		return col.Gte(v)
	case OpLt:
		return col.Lt(v)
	case OpLe:
		return col.Lte(v)
	default:
		return col.Eq(v)
	}
}

func complement(op Op) Op {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	default:
		return op
	}
}

// guarded keeps the comparison away from absent values, or lets them through
// when negated.
func guarded(col exp.Expression, cond exp.Expression, negated bool) exp.Expression {
	if negated {
		return goqu.Or(isNull(col), cond)
	}
	return goqu.And(isNotNull(col), cond)
}

// target is the column a leaf tests after its path has been joined.
type target struct {
	col   exp.IdentifierExpression
	desc  *metadata.Descriptor // nil for the identity column
	alias string               // alias of the last joined table
}

// traverse joins every step of p starting at the root alias. Associations
// join their table and then the referenced entity; properties join their
// table below the entity or below the enclosing value row. The last step
// joins only its own table.
func (b *builder) traverse(f *fragment, p Path, kind joinKind) (target, error) {
	if p.IsZero() {
		return target{}, notQueryable(p, "empty path")
	}

	entity := rootAlias
	parent := "" // alias of the enclosing value row
	for i, step := range p.Steps {
		last := i == len(p.Steps)-1
		if step.IsIdentity() {
			if !last || parent != "" {
				return target{}, notQueryable(p, "identity must end a path at an entity")
			}
			return target{col: column(entity, metadata.ColEntityIdentity), alias: entity}, nil
		}

		d, err := b.reg.Describe(step)
		if err != nil {
			return target{}, notQueryable(p, "%s is not indexed", step)
		}

		a := f.alias()
		switch d.Kind {
		case metadata.Association, metadata.ManyAssociation:
			if parent != "" {
				return target{}, notQueryable(p, "value types cannot hold associations")
			}
			if !last && d.Kind == metadata.ManyAssociation {
				return target{}, notQueryable(p, "cannot traverse many-association %s", step.Name)
			}
			f.join(kind, d.TableName, a, column(entity, metadata.ColEntityPK).Eq(column(a, metadata.ColEntityPK)))
			if last {
				return target{col: column(a, metadata.ColValue), desc: d, alias: a}, nil
			}
			e := f.alias()
			f.join(kind, metadata.TableEntities, e, column(a, metadata.ColValue).Eq(column(e, metadata.ColEntityIdentity)))
			entity = e

		default:
			if !last && d.IsCollection() {
				return target{}, notQueryable(p, "cannot traverse collection %s", step.Name)
			}
			if !last && !d.IsValue() {
				return target{}, notQueryable(p, "%s has no members", step.Name)
			}
			f.join(kind, d.TableName, a, propertyJoin(entity, parent, a)...)
			if last {
				return target{col: column(a, metadata.ColValue), desc: d, alias: a}, nil
			}
			parent = a
		}
	}
	return target{}, notQueryable(p, "path does not end in a member")
}

// propertyJoin links a property row to its entity, or to the value row that
// owns it when parent is set.
func propertyJoin(entity, parent, alias string) []exp.Expression {
	if parent == "" {
		return []exp.Expression{
			column(entity, metadata.ColEntityPK).Eq(column(alias, metadata.ColEntityPK)),
			isNull(column(alias, metadata.ColParentQName)),
		}
	}
	return []exp.Expression{
		column(parent, metadata.ColQNameID).Eq(column(alias, metadata.ColParentQName)),
		column(parent, metadata.ColEntityPK).Eq(column(alias, metadata.ColEntityPK)),
	}
}

func (b *builder) comparison(p Comparison, negated bool) (*goqu.SelectDataset, error) {
	if p.Value == nil {
		switch p.Op {
		case OpEq:
			return b.nullCheck("Comparison", p.Path, true, negated)
		case OpNe:
			return b.nullCheck("Comparison", p.Path, false, negated)
		default:
			return nil, unsupported(p.Op.String(), "cannot order-compare %s with null", p.Path)
		}
	}
	if v, ok := p.Value.(Value); ok {
		return b.composite(p, v, negated)
	}

	f := newFragment()
	t, err := b.traverse(f, p.Path, joinStyle(leafComparison, negated))
	if err != nil {
		return nil, err
	}
	if d := t.desc; d != nil {
		switch {
		case d.Kind == metadata.ManyAssociation:
			return nil, notQueryable(p.Path, "many-associations are tested with ManyAssociationContains")
		case d.IsCollection():
			return nil, notQueryable(p.Path, "collection items are tested with Contains")
		case d.IsEnum() && p.Op != OpEq && p.Op != OpNe:
			return nil, unsupported(p.Op.String(), "enum %s supports only eq and ne", d.EnumType)
		}
	}
	lit, err := b.literal(p.Path, t.desc, p.Value)
	if err != nil {
		return nil, err
	}
	cmp := compare(t.col, p.Op, negated, b.bind(lit))
	return b.fragmentSelect(f, guarded(t.col, cmp, negated)), nil
}

func (b *builder) matches(p Matches, negated bool) (*goqu.SelectDataset, error) {
	if _, err := regexp.Compile(p.Regex); err != nil {
		return nil, invalidLiteral(p.Path, "%v", err)
	}
	f := newFragment()
	t, err := b.traverse(f, p.Path, joinStyle(leafComparison, negated))
	if err != nil {
		return nil, err
	}
	if d := t.desc; d != nil {
		if d.IsCollection() || d.Kind == metadata.ManyAssociation {
			return nil, notQueryable(p.Path, "cannot match a multi-valued member")
		}
		if d.Kind == metadata.Property && d.Scalar != metadata.ScalarString {
			return nil, unsupported("Matches", "%s is not a string property", p.Path)
		}
	}
	pattern := b.bind(param{Value: p.Regex, Type: Varchar})
	var re exp.Expression = t.col.RegexpLike(pattern)
	if negated {
		re = t.col.RegexpNotLike(pattern)
	}
	return b.fragmentSelect(f, guarded(t.col, re, negated)), nil
}

// nullCheck compiles the null predicates. wantNull selects IsNull over IsNotNull;
// negation swaps both the join style and the test.
func (b *builder) nullCheck(pred string, p Path, wantNull, negated bool) (*goqu.SelectDataset, error) {
	kind := leafIsNotNull
	if wantNull {
		kind = leafIsNull
	}
	f := newFragment()
	t, err := b.traverse(f, p, joinStyle(kind, negated))
	if err != nil {
		return nil, err
	}

	col := t.col
	if d := t.desc; d != nil {
		switch pred {
		case "PropertyIsNull", "PropertyIsNotNull":
			if d.Kind != metadata.Property {
				return nil, unsupported(pred, "%s is an association", p)
			}
		case "AssociationIsNull", "AssociationIsNotNull":
			if d.Kind == metadata.Property {
				return nil, unsupported(pred, "%s is a property", p)
			}
		}
		// Collections store a null-valued top row, and many-associations
		// have no value to speak of; presence is any row at all.
		if d.IsCollection() || d.Kind == metadata.ManyAssociation {
			col = column(t.alias, metadata.ColQNameID)
		}
	}
	if wantNull != negated {
		return b.fragmentSelect(f, isNull(col)), nil
	}
	return b.fragmentSelect(f, isNotNull(col)), nil
}

// composite compares a value-typed member with a Value literal, member by member.
func (b *builder) composite(p Comparison, v Value, negated bool) (*goqu.SelectDataset, error) {
	if p.Op != OpEq {
		return nil, unsupported(p.Op.String(), "composite values support only eq")
	}
	f := newFragment()
	t, err := b.traverse(f, p.Path, joinStyle(leafComparison, negated))
	if err != nil {
		return nil, err
	}
	if t.desc == nil || !t.desc.IsValue() {
		return nil, invalidLiteral(p.Path, "only value-typed members compare with a query.Value literal")
	}
	if t.desc.IsCollection() {
		return nil, notQueryable(p.Path, "collection items are tested with Contains")
	}

	conds, err := b.valueConds(f, p.Path, t.alias, t.desc.ValueType, v, negated)
	if err != nil {
		return nil, err
	}
	switch {
	case len(conds) == 0 && negated:
		return b.fragmentSelect(f, isNull(t.col)), nil
	case len(conds) == 0:
		return b.fragmentSelect(f, isNotNull(t.col)), nil
	case negated:
		return b.fragmentSelect(f, goqu.Or(conds...)), nil
	default:
		return b.fragmentSelect(f, goqu.And(conds...)), nil
	}
}

// valueConds joins the named members of a value row (LEFT OUTER, in schema
// order) and returns one condition per member. Nested Value literals recurse.
func (b *builder) valueConds(f *fragment, p Path, parent, valueType string, v Value, negated bool) ([]exp.Expression, error) {
	members := b.reg.ValueMembers(valueType)
	known := make(map[string]bool, len(members))
	for _, qn := range members {
		known[qn.Name] = true
	}
	for name := range v {
		if !known[name] {
			return nil, invalidLiteral(p, "%s has no indexed member %q", valueType, name)
		}
	}

	var conds []exp.Expression
	for _, qn := range members {
		lit, ok := v[qn.Name]
		if !ok {
			continue
		}
		d, err := b.reg.Describe(qn)
		if err != nil {
			return nil, notQueryable(p, "%s is not indexed", qn)
		}
		a := f.alias()
		f.join(leftOuterJoin, d.TableName, a, propertyJoin("", parent, a)...)
		col := column(a, metadata.ColValue)

		if d.IsCollection() {
			return nil, invalidLiteral(p, "member %s is a collection", qn.Name)
		}
		switch lit := lit.(type) {
		case nil:
			if negated {
				conds = append(conds, isNotNull(col))
			} else {
				conds = append(conds, isNull(col))
			}
		case Value:
			if !d.IsValue() {
				return nil, invalidLiteral(p, "member %s is not a value type", qn.Name)
			}
			nested, err := b.valueConds(f, p, a, d.ValueType, lit, negated)
			if err != nil {
				return nil, err
			}
			conds = append(conds, nested...)
		default:
			coerced, err := b.literal(p, d, lit)
			if err != nil {
				return nil, err
			}
			conds = append(conds, guarded(col, compare(col, OpEq, negated, b.bind(coerced)), negated))
		}
	}
	return conds, nil
}

// collectionTarget joins p and checks that it ends at a collection property.
func (b *builder) collectionTarget(f *fragment, p Path) (target, error) {
	t, err := b.traverse(f, p, joinStyle(leafContainment, false))
	if err != nil {
		return target{}, err
	}
	if t.desc == nil || t.desc.Kind != metadata.Property || !t.desc.IsCollection() {
		return target{}, notQueryable(p, "%s is not a collection property", p)
	}
	return t, nil
}

func itemRows(t target) exp.Expression {
	return column(t.alias, metadata.ColCollectionPath).RegexpLike(sqlString(itemPattern))
}

func (b *builder) contains(p Contains) (*goqu.SelectDataset, error) {
	if p.Value == nil {
		return nil, unsupported("Contains", "null items are not indexed")
	}
	f := newFragment()
	t, err := b.collectionTarget(f, p.Path)
	if err != nil {
		return nil, err
	}

	conds := []exp.Expression{itemRows(t)}
	if v, ok := p.Value.(Value); ok {
		if !t.desc.IsValue() {
			return nil, invalidLiteral(p.Path, "items of %s are not values", p.Path)
		}
		nested, err := b.valueConds(f, p.Path, t.alias, t.desc.ValueType, v, false)
		if err != nil {
			return nil, err
		}
		conds = append(conds, nested...)
	} else {
		lit, err := b.literal(p.Path, t.desc, p.Value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, t.col.Eq(b.bind(lit)))
	}
	return b.fragmentSelect(f, goqu.And(conds...)), nil
}

// containsAll selects entities whose collection holds every distinct literal.
// Rows matching any literal are grouped per entity and the distinct literals
// hit are counted, so an item repeated in the collection counts once.
func (b *builder) containsAll(p ContainsAll) (*goqu.SelectDataset, error) {
	f := newFragment()
	t, err := b.collectionTarget(f, p.Path)
	if err != nil {
		return nil, err
	}
	if t.desc.IsValue() {
		return nil, unsupported("ContainsAll", "items of %s are composite values", p.Path)
	}

	var lits []param
	seen := make(map[string]bool, len(p.Values))
	for _, v := range p.Values {
		if v == nil {
			return nil, unsupported("ContainsAll", "null items are not indexed")
		}
		lit, err := b.literal(p.Path, t.desc, v)
		if err != nil {
			return nil, err
		}
		key := literalKey(lit)
		if seen[key] {
			continue
		}
		seen[key] = true
		lits = append(lits, lit)
	}

	if len(lits) == 0 {
		top := column(t.alias, metadata.ColCollectionPath).Eq(sqlString(metadata.CollectionRoot))
		return b.fragmentSelect(f, top), nil
	}

	// WHERE renders before HAVING, so the anyOf values bind first.
	anyOf := make([]exp.Expression, len(lits))
	for i, lit := range lits {
		anyOf[i] = t.col.Eq(b.bind(lit))
	}
	hit := goqu.Case()
	for i, lit := range lits {
		hit = hit.When(t.col.Eq(b.bind(lit)), goqu.L(strconv.Itoa(i+1)))
	}

	return b.fragmentSelect(f, goqu.And(itemRows(t), goqu.Or(anyOf...))).
		GroupBy(column(rootAlias, metadata.ColEntityPK), column(rootAlias, metadata.ColEntityIdentity)).
		Having(goqu.COUNT(goqu.DISTINCT(hit)).Gte(goqu.L(strconv.Itoa(len(lits))))), nil
}

func (b *builder) manyAssociationContains(p ManyAssociationContains) (*goqu.SelectDataset, error) {
	f := newFragment()
	t, err := b.traverse(f, p.Path, joinStyle(leafContainment, false))
	if err != nil {
		return nil, err
	}
	if t.desc == nil || t.desc.Kind != metadata.ManyAssociation {
		return nil, notQueryable(p.Path, "%s is not a many-association", p.Path)
	}
	return b.fragmentSelect(f, t.col.Eq(b.bind(param{Value: p.Identity, Type: Varchar}))), nil
}
