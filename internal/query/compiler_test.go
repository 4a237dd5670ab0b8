package query_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/fixture"
	"qindex/internal/metadata"
	"qindex/internal/query"
	"qindex/internal/store"
)

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg, err := fixture.Registry()
	require.NoError(t, err)
	return reg
}

func mustPath(t *testing.T, reg *metadata.Registry, root, dotted string) query.Path {
	t.Helper()
	p, err := query.ResolvePath(reg.Schema(), root, dotted)
	require.NoError(t, err)
	return p
}

func plan(c *query.Compiled) []byte {
	return []byte(fmt.Sprintf("%s\n-- params: %v\n-- types: %v\n", c.SQL, c.Params, c.ParamTypes))
}

func TestCompileGolden(t *testing.T) {
	reg := testRegistry(t)
	person := func(dotted string) query.Path { return mustPath(t, reg, "Person", dotted) }

	cases := []struct {
		name    string
		dialect string
		req     query.Request
	}{
		{
			name:    "comparison_gt",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Gt(person("yearOfBirth"), 1973)},
		},
		{
			name:    "not_and_de_morgan",
			dialect: "postgres",
			req: query.Request{ResultType: "Person", Where: query.Negate(query.AllOf(
				query.Eq(person("name"), "Jack Doe"),
				query.Gt(person("yearOfBirth"), 1960),
			))},
		},
		{
			name:    "association_path",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("placeOfBirth.name"), "Kuala Lumpur")},
		},
		{
			name:    "value_member_path",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("address.zipCode"), "50000")},
		},
		{
			name:    "enum_eq",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("gender"), "MALE")},
		},
		{
			name:    "property_is_null",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.PropertyIsNull{Path: person("email")}},
		},
		{
			name:    "contains",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Contains{Path: person("tags"), Value: "b"}},
		},
		{
			name:    "not_contains",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.Negate(query.Contains{Path: person("tags"), Value: "b"})},
		},
		{
			name:    "contains_all",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.ContainsAll{Path: person("tags"), Values: []any{"a", "b", "a"}}},
		},
		{
			name:    "many_association_contains",
			dialect: "postgres",
			req:     query.Request{ResultType: "Person", Where: query.ManyAssociationContains{Path: person("interests"), Identity: "cooking"}},
		},
		{
			name:    "composite_value",
			dialect: "postgres",
			req: query.Request{ResultType: "Person", Where: query.Eq(person("address"),
				query.Value{"street": "Jalan 1", "zipCode": "50000"})},
		},
		{
			name:    "association_identity",
			dialect: "postgres",
			req:     query.Request{ResultType: "Male", Where: query.Eq(mustPath(t, reg, "Male", "mother.identity"), "ann")},
		},
		{
			name:    "order_and_page",
			dialect: "postgres",
			req: query.Request{
				ResultType:  "Person",
				OrderBy:     []query.OrderSpec{{Path: person("name"), Descending: true}},
				FirstResult: 10,
				MaxResults:  5,
			},
		},
		{
			name:    "count_interface",
			dialect: "postgres",
			req:     query.Request{ResultType: "Nameable", CountOnly: true},
		},
		{
			name:    "sqlite_or",
			dialect: "sqlite",
			req: query.Request{ResultType: "Person", Where: query.AnyOf(
				query.Eq(person("name"), "Ann Doe"),
				query.Matches{Path: person("email"), Regex: "^jack"},
			)},
		},
		{
			name:    "sqlite_offset_only",
			dialect: "sqlite",
			req:     query.Request{ResultType: "City", FirstResult: 1},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := query.NewCompiler(reg, store.NewDialect(tc.dialect))
			compiled, err := c.Compile(tc.req)
			require.NoError(t, err)
			require.Len(t, compiled.ParamTypes, len(compiled.Params))
			g.Assert(t, tc.name, plan(compiled))
		})
	}
}

func TestCompileRejects(t *testing.T) {
	reg := testRegistry(t)
	c := query.NewCompiler(reg, store.NewDialect("postgres"))
	person := func(dotted string) query.Path { return mustPath(t, reg, "Person", dotted) }

	cases := []struct {
		name    string
		req     query.Request
		wantErr error
		unsup   bool
	}{
		{
			name:    "unknown result type",
			req:     query.Request{ResultType: "Dog"},
			wantErr: metadata.ErrUnknownType,
		},
		{
			name:    "negative page",
			req:     query.Request{ResultType: "Person", MaxResults: -1},
			wantErr: query.ErrInvalidRequest,
		},
		{
			name:    "unindexed member",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("nickname"), "annie")},
			wantErr: query.ErrNotQueryable,
		},
		{
			name:    "traverse collection",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("previousAddresses.street"), "x")},
			wantErr: query.ErrNotQueryable,
		},
		{
			name:    "traverse many-association",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("interests.name"), "Cars")},
			wantErr: query.ErrNotQueryable,
		},
		{
			name:    "compare collection",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("tags"), "a")},
			wantErr: query.ErrNotQueryable,
		},
		{
			name:    "order by collection",
			req:     query.Request{ResultType: "Person", OrderBy: []query.OrderSpec{{Path: person("tags")}}},
			wantErr: query.ErrNotQueryable,
		},
		{
			name:    "wrong literal type",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("yearOfBirth"), "nineteen")},
			wantErr: query.ErrInvalidLiteral,
		},
		{
			name:    "integer overflow",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("yearOfBirth"), int64(1) << 40)},
			wantErr: query.ErrInvalidLiteral,
		},
		{
			name:    "unknown enum constant",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("gender"), "OTHER")},
			wantErr: query.ErrInvalidLiteral,
		},
		{
			name:    "bad regex",
			req:     query.Request{ResultType: "Person", Where: query.Matches{Path: person("name"), Regex: "("}},
			wantErr: query.ErrInvalidLiteral,
		},
		{
			name:    "unknown value member",
			req:     query.Request{ResultType: "Person", Where: query.Eq(person("address"), query.Value{"city": "x"})},
			wantErr: query.ErrInvalidLiteral,
		},
		{
			name:  "ordering comparison on enum",
			req:   query.Request{ResultType: "Person", Where: query.Gt(person("gender"), "MALE")},
			unsup: true,
		},
		{
			name:  "ordering comparison with null",
			req:   query.Request{ResultType: "Person", Where: query.Lt(person("yearOfBirth"), nil)},
			unsup: true,
		},
		{
			name:  "composite ne",
			req:   query.Request{ResultType: "Person", Where: query.Ne(person("address"), query.Value{"street": "x"})},
			unsup: true,
		},
		{
			name:  "property null check on association",
			req:   query.Request{ResultType: "Person", Where: query.PropertyIsNull{Path: person("mother")}},
			unsup: true,
		},
		{
			name:  "contains null",
			req:   query.Request{ResultType: "Person", Where: query.Contains{Path: person("tags")}},
			unsup: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Compile(tc.req)
			require.Error(t, err)
			if tc.unsup {
				assert.True(t, query.IsUnsupported(err), "got %v", err)
				return
			}
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestCompileEmptyExpansion(t *testing.T) {
	s, err := metadata.ParseSchema([]byte(`
types:
  - name: Shape
    kind: interface
    members:
      - name: sides
        type: integer
`))
	require.NoError(t, err)
	reg, err := metadata.Build(s, metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)

	c := query.NewCompiler(reg, store.NewDialect("postgres"))
	compiled, err := c.Compile(query.Request{ResultType: "Shape"})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t0"."entity_identity" FROM (SELECT DISTINCT "t0"."entity_pk", "t0"."entity_identity" FROM "entities" AS "t0" WHERE 1 = 0) AS "t0"`,
		compiled.SQL)
}

func TestCompileNotNilSelectsNothing(t *testing.T) {
	reg := testRegistry(t)
	c := query.NewCompiler(reg, store.NewDialect("postgres"))
	compiled, err := c.Compile(query.Request{ResultType: "City", Where: query.Negate(nil)})
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `WHERE (1 = 0 AND ("t0"."entity_type_id" IN (3)))`)
	assert.Empty(t, compiled.Params)

	ds, err := c.Build(query.Request{ResultType: "City", Where: query.Negate(nil), MaxResults: 2})
	require.NoError(t, err)
	sql, _, err := ds.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sql, "1 = 0")
	assert.NotContains(t, sql, "LIMIT")
}

func TestCompileEnumConstant(t *testing.T) {
	reg := testRegistry(t)
	c := query.NewCompiler(reg, store.NewDialect("postgres"))
	gender := mustPath(t, reg, "Person", "gender")

	byName, err := c.Compile(query.Request{ResultType: "Person", Where: query.Eq(gender, "MALE")})
	require.NoError(t, err)
	typed, err := c.Compile(query.Request{ResultType: "Person", Where: query.Eq(gender, query.EnumConstant{Type: "Gender", Name: "MALE"})})
	require.NoError(t, err)
	assert.Equal(t, byName, typed)
	assert.Equal(t, []any{int64(1)}, typed.Params)
	assert.Equal(t, []query.ParamType{query.Integer}, typed.ParamTypes)

	untyped, err := c.Compile(query.Request{ResultType: "Person", Where: query.Eq(gender, query.EnumConstant{Name: "MALE"})})
	require.NoError(t, err)
	assert.Equal(t, typed.Params, untyped.Params)

	_, err = c.Compile(query.Request{ResultType: "Person", Where: query.Eq(gender, query.EnumConstant{Type: "Color", Name: "MALE"})})
	assert.ErrorIs(t, err, query.ErrInvalidLiteral)
	assert.ErrorContains(t, err, "Color.MALE is not a constant of Gender")
}

func TestCompileNegatedRegexp(t *testing.T) {
	reg := testRegistry(t)
	name := mustPath(t, reg, "Person", "name")

	compiled, err := query.NewCompiler(reg, store.NewDialect("postgres")).Compile(query.Request{
		ResultType: "Person",
		Where:      query.Negate(query.Matches{Path: name, Regex: "^J"}),
	})
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `("t1"."value" IS NULL OR ("t1"."value" !~ $1))`)

	compiled, err = query.NewCompiler(reg, store.NewDialect("sqlite")).Compile(query.Request{
		ResultType: "Person",
		Where:      query.Negate(query.Matches{Path: name, Regex: "^J"}),
	})
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, "(`t1`.`value` NOT REGEXP ?)")
	assert.Equal(t, []any{"^J"}, compiled.Params)
}

func TestContainsAllEmptyTestsPresence(t *testing.T) {
	reg := testRegistry(t)
	c := query.NewCompiler(reg, store.NewDialect("postgres"))
	compiled, err := c.Compile(query.Request{
		ResultType: "Person",
		Where:      query.ContainsAll{Path: mustPath(t, reg, "Person", "tags")},
	})
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `("t1"."collection_path" = 'Top')`)
	assert.NotContains(t, compiled.SQL, "HAVING")
	assert.Empty(t, compiled.Params)
}

func TestOrderingAlwaysEndsWithIdentity(t *testing.T) {
	reg := testRegistry(t)
	c := query.NewCompiler(reg, store.NewDialect("postgres"))

	compiled, err := c.Compile(query.Request{ResultType: "City", MaxResults: 1})
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, `ORDER BY "t0"."entity_identity" ASC LIMIT 1`)

	compiled, err = c.Compile(query.Request{ResultType: "City"})
	require.NoError(t, err)
	assert.NotContains(t, compiled.SQL, "ORDER BY")
}
