package query_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/metadata"
	"qindex/internal/query"
)

func TestParse(t *testing.T) {
	reg := testRegistry(t)
	person := func(dotted string) query.Path { return mustPath(t, reg, "Person", dotted) }

	cases := []struct {
		text string
		want query.Predicate
	}{
		{
			text: `yearOfBirth > 1973`,
			want: query.Gt(person("yearOfBirth"), int64(1973)),
		},
		{
			text: `1973 < yearOfBirth`,
			want: query.Gt(person("yearOfBirth"), int64(1973)),
		},
		{
			text: `placeOfBirth.name == "Kuala Lumpur" && yearOfBirth >= 1973`,
			want: query.And{
				Left:  query.Eq(person("placeOfBirth.name"), "Kuala Lumpur"),
				Right: query.Ge(person("yearOfBirth"), int64(1973)),
			},
		},
		{
			text: `not (email == nil) or name matches "^J"`,
			want: query.Or{
				Left:  query.Not{Operand: query.PropertyIsNull{Path: person("email")}},
				Right: query.Matches{Path: person("name"), Regex: "^J"},
			},
		},
		{
			text: `mother != nil`,
			want: query.AssociationIsNotNull{Path: person("mother")},
		},
		{
			text: `isNull(father)`,
			want: query.AssociationIsNull{Path: person("father")},
		},
		{
			text: `isNotNull(address)`,
			want: query.PropertyIsNotNull{Path: person("address")},
		},
		{
			text: `"b" in tags`,
			want: query.Contains{Path: person("tags"), Value: "b"},
		},
		{
			text: `"programming" in interests`,
			want: query.ManyAssociationContains{Path: person("interests"), Identity: "programming"},
		},
		{
			text: `hasAll(tags, ["a", "b"])`,
			want: query.ContainsAll{Path: person("tags"), Values: []any{"a", "b"}},
		},
		{
			text: `gender in ["MALE", "FEMALE"]`,
			want: query.Or{
				Left:  query.Eq(person("gender"), "MALE"),
				Right: query.Eq(person("gender"), "FEMALE"),
			},
		},
		{
			text: `address == {street: "Jalan 1", zipCode: "50000"}`,
			want: query.Eq(person("address"), query.Value{"street": "Jalan 1", "zipCode": "50000"}),
		},
		{
			text: `yearOfBirth != -1`,
			want: query.Ne(person("yearOfBirth"), int64(-1)),
		},
		{
			text: `mother.identity == "ann"`,
			want: query.Eq(person("mother.identity"), "ann"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := query.Parse(reg, "Person", tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	s, err := metadata.ParseSchema([]byte(`
types:
  - name: Event
    kind: entity
    members:
      - name: at
        type: datetime
`))
	require.NoError(t, err)
	reg, err := metadata.Build(s, metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)

	got, err := query.Parse(reg, "Event", `at >= date("2024-03-01")`)
	require.NoError(t, err)
	cmp, ok := got.(query.Comparison)
	require.True(t, ok)
	assert.Equal(t, query.OpGe, cmp.Op)
	assert.Equal(t, query.Date(2024, time.March, 1), cmp.Value)
}

func TestParseEmpty(t *testing.T) {
	reg := testRegistry(t)
	got, err := query.Parse(reg, "Person", "   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseErrors(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		text    string
		wantErr error
	}{
		{`yearOfBirth >`, query.ErrSyntax},
		{`yearOfBirth + 1`, query.ErrSyntax},
		{`frobnicate(tags)`, query.ErrSyntax},
		{`hasAll(tags, "a")`, query.ErrSyntax},
		{`name matches email`, query.ErrSyntax},
		{`shoeSize == 42`, query.ErrUnknownMember},
		{`date("yesterday") == date("today")`, query.ErrSyntax},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			_, err := query.Parse(reg, "Person", tc.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}

	_, err := query.Parse(reg, "Dog", "name == 'x'")
	assert.ErrorIs(t, err, metadata.ErrUnknownType)
}

func TestParseErrorPosition(t *testing.T) {
	reg := testRegistry(t)

	_, err := query.Parse(reg, "Person", `frobnicate(tags)`)
	require.ErrorIs(t, err, query.ErrSyntax)
	assert.Contains(t, err.Error(), `unknown function "frobnicate" at offset `)

	_, err = query.Parse(reg, "Person", `yearOfBirth + 1`)
	require.ErrorIs(t, err, query.ErrSyntax)
	assert.Regexp(t, `unsupported operator "\+" at offset \d+$`, err.Error())
}

func TestParseOrder(t *testing.T) {
	reg := testRegistry(t)
	specs, err := query.ParseOrder(reg, "Person", "name desc, placeOfBirth.name , yearOfBirth ASC")
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.True(t, specs[0].Descending)
	assert.Equal(t, "placeOfBirth.name", specs[1].Path.String())
	assert.False(t, specs[2].Descending)

	_, err = query.ParseOrder(reg, "Person", "name sideways")
	assert.ErrorIs(t, err, query.ErrSyntax)
}
