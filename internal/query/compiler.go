package query

import (
	"fmt"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"qindex/internal/metadata"
)

// OrderSpec orders results by the member at Path.
type OrderSpec struct {
	Path       Path
	Descending bool
}

// Request describes one query: the result type, an optional predicate and
// the ordering and pagination of the identities it selects.
type Request struct {
	ResultType  string
	Where       Predicate
	OrderBy     []OrderSpec
	FirstResult int // rows to skip, 0 for none
	MaxResults  int // 0 for unlimited
	CountOnly   bool
}

// Paginated reports whether the request skips or limits rows.
func (r Request) Paginated() bool {
	return r.FirstResult > 0 || r.MaxResults > 0
}

// Compiled is a rendered statement. Params and ParamTypes are aligned with
// the placeholders in SQL.
type Compiled struct {
	SQL        string      `json:"sql"`
	Params     []any       `json:"params"`
	ParamTypes []ParamType `json:"param_types"`
}

// Syntax names the goqu dialect statements are rendered with and supplies the
// LIMIT/OFFSET clause, which is appended as text so that page bounds stay out
// of the bound parameters. store.Dialect implements it.
type Syntax interface {
	GoquDialect() string
	Pagination(offset, limit int) string
}

// Compiler turns requests into SQL for one registry and dialect. It holds no
// per-query state and is safe for concurrent use.
type Compiler struct {
	reg    *metadata.Registry
	syntax Syntax
}

func NewCompiler(reg *metadata.Registry, syntax Syntax) *Compiler {
	return &Compiler{reg: reg, syntax: syntax}
}

// Registry returns the registry the compiler resolves names against.
func (c *Compiler) Registry() *metadata.Registry { return c.reg }

// Compile builds and renders the statement for req.
func (c *Compiler) Compile(req Request) (*Compiled, error) {
	ds, b, err := c.build(req)
	if err != nil {
		return nil, err
	}
	sql, params, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("render %s query: %w", req.ResultType, err)
	}
	if len(params) != len(b.types) {
		return nil, fmt.Errorf("render %s query: %d parameters bound, %d typed", req.ResultType, len(params), len(b.types))
	}
	if !req.CountOnly {
		if page := c.syntax.Pagination(req.FirstResult, req.MaxResults); page != "" {
			sql += " " + page
		}
	}
	if params == nil {
		params = []any{}
	}
	return &Compiled{SQL: sql, Params: params, ParamTypes: append([]ParamType{}, b.types...)}, nil
}

// Build returns the statement for req as a goqu dataset, before LIMIT and
// OFFSET are appended.
func (c *Compiler) Build(req Request) (*goqu.SelectDataset, error) {
	ds, _, err := c.build(req)
	return ds, err
}

// build assembles the statement for req.
//
// The predicate compiles to a set of (entity_pk, entity_identity) rows, built
// from one fragment per leaf combined with INTERSECT, UNION and EXCEPT. The
// outer statement selects identities from that set and joins whatever the
// ordering needs.
func (c *Compiler) build(req Request) (*goqu.SelectDataset, *builder, error) {
	if !c.reg.Types().Known(req.ResultType) {
		return nil, nil, fmt.Errorf("%w: %s", metadata.ErrUnknownType, req.ResultType)
	}
	if req.FirstResult < 0 || req.MaxResults < 0 {
		return nil, nil, fmt.Errorf("%w: first result %d, max results %d", ErrInvalidRequest, req.FirstResult, req.MaxResults)
	}

	b := &builder{
		reg:     c.reg,
		dialect: goqu.Dialect(c.syntax.GoquDialect()),
		typeIDs: c.reg.Types().Expand(req.ResultType),
	}
	inner, err := b.predicate(req.Where, false)
	if err != nil {
		return nil, nil, err
	}
	from := inner.As(rootAlias)
	identity := column(rootAlias, metadata.ColEntityIdentity)

	if req.CountOnly {
		return b.dialect.From(from).Select(goqu.COUNT(identity)), b, nil
	}

	main := b.dialect.From(from).Select(identity)
	f := newFragment()
	var order []exp.OrderedExpression
	for _, o := range req.OrderBy {
		col, err := b.orderColumn(f, o.Path)
		if err != nil {
			return nil, nil, err
		}
		term := col.Asc()
		if o.Descending {
			term = col.Desc()
		}
		order = append(order, term.NullsLast())
	}
	main = f.apply(main)

	if len(req.OrderBy) > 0 || req.Paginated() {
		order = append(order, identity.Asc())
	}
	if len(order) > 0 {
		main = main.Order(order...)
	}
	return main, b, nil
}

// builder carries the state of one build call.
type builder struct {
	reg     *metadata.Registry
	dialect goqu.DialectWrapper
	typeIDs []int
	types   []ParamType // one per bound value, in placeholder order
	sets    int         // derived tables allocated so far
}

// bind records the type of a value that goqu will bind as a parameter.
// Fragments are built in the order they render, so the recorded types line
// up with the placeholders.
func (b *builder) bind(p param) any {
	b.types = append(b.types, p.Type)
	return p.Value
}

func (b *builder) setAlias() string {
	b.sets++
	return "s" + strconv.Itoa(b.sets)
}

func (b *builder) predicate(p Predicate, negated bool) (*goqu.SelectDataset, error) {
	switch p := p.(type) {
	case nil:
		if negated {
			return b.emptySet(), nil
		}
		return b.allOfType(), nil

	case And:
		return b.combine(!negated, p.Left, p.Right, negated)

	case Or:
		return b.combine(negated, p.Left, p.Right, negated)

	case Not:
		return b.predicate(p.Operand, !negated)

	case Comparison:
		return b.comparison(p, negated)

	case Matches:
		return b.matches(p, negated)

	case PropertyIsNull:
		return b.nullCheck("PropertyIsNull", p.Path, true, negated)

	case PropertyIsNotNull:
		return b.nullCheck("PropertyIsNotNull", p.Path, false, negated)

	case AssociationIsNull:
		return b.nullCheck("AssociationIsNull", p.Path, true, negated)

	case AssociationIsNotNull:
		return b.nullCheck("AssociationIsNotNull", p.Path, false, negated)

	case ManyAssociationContains:
		q, err := b.manyAssociationContains(p)
		return b.except(q, err, negated)

	case Contains:
		q, err := b.contains(p)
		return b.except(q, err, negated)

	case ContainsAll:
		q, err := b.containsAll(p)
		return b.except(q, err, negated)

	default:
		return nil, unsupported(fmt.Sprintf("%T", p), "unknown predicate kind")
	}
}

// combine intersects or unions both sides. The compound is wrapped in a
// derived table so that it can itself be an operand.
func (b *builder) combine(intersect bool, l, r Predicate, negated bool) (*goqu.SelectDataset, error) {
	left, err := b.predicate(l, negated)
	if err != nil {
		return nil, err
	}
	right, err := b.predicate(r, negated)
	if err != nil {
		return nil, err
	}
	var set *goqu.SelectDataset
	if intersect {
		set = left.Intersect(right)
	} else {
		set = left.Union(right)
	}
	return b.dialect.From(set.As(b.setAlias())), nil
}

// except negates containment leaves by subtracting them from every entity of
// the result type, so entities without the collection are kept. goqu has no
// EXCEPT compound, hence the literal.
func (b *builder) except(q *goqu.SelectDataset, err error, negated bool) (*goqu.SelectDataset, error) {
	if err != nil {
		return nil, err
	}
	if !negated {
		return q, nil
	}
	diff := goqu.L("(SELECT * FROM ? EXCEPT SELECT * FROM ?)", b.allOfType().As(b.setAlias()), q.As(b.setAlias()))
	return b.dialect.From(diff.As(b.setAlias())), nil
}

func (b *builder) allOfType() *goqu.SelectDataset {
	return b.fragmentSelect(newFragment(), nil)
}

func (b *builder) emptySet() *goqu.SelectDataset {
	return b.fragmentSelect(newFragment(), selectNothing)
}

// fragmentSelect wraps a leaf condition into the common fragment shape.
func (b *builder) fragmentSelect(f *fragment, cond exp.Expression) *goqu.SelectDataset {
	ds := b.dialect.From(goqu.T(metadata.TableEntities).As(rootAlias)).
		Select(column(rootAlias, metadata.ColEntityPK), column(rootAlias, metadata.ColEntityIdentity)).
		Distinct()
	ds = f.apply(ds)
	if cond != nil {
		return ds.Where(cond, b.typeFilter())
	}
	return ds.Where(b.typeFilter())
}

func (b *builder) typeFilter() exp.Expression {
	if len(b.typeIDs) == 0 {
		return selectNothing
	}
	ids := make([]any, len(b.typeIDs))
	for i, id := range b.typeIDs {
		ids[i] = goqu.L(strconv.Itoa(id))
	}
	return column(rootAlias, metadata.ColEntityTypeID).In(ids...)
}

func (b *builder) orderColumn(f *fragment, p Path) (exp.IdentifierExpression, error) {
	t, err := b.traverse(f, p, leftOuterJoin)
	if err != nil {
		return nil, err
	}
	if d := t.desc; d != nil {
		switch {
		case d.IsCollection(), d.Kind == metadata.ManyAssociation:
			return nil, notQueryable(p, "cannot order by a multi-valued member")
		case d.IsValue():
			return nil, notQueryable(p, "cannot order by a composite value")
		}
	}
	return t.col, nil
}
