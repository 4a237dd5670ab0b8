package metadata_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/metadata"
)

func TestParseSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown supertype",
			yaml: "types:\n  - {name: A, kind: entity, extends: [B]}\n",
			want: `extends unknown type "B"`,
		},
		{
			name: "entity extends value",
			yaml: "types:\n  - {name: V, kind: value}\n  - {name: A, kind: entity, extends: [V]}\n",
			want: "cannot extend value type",
		},
		{
			name: "cycle",
			yaml: "types:\n  - {name: A, kind: interface, extends: [B]}\n  - {name: B, kind: interface, extends: [A]}\n",
			want: "inheritance cycle",
		},
		{
			name: "empty enum",
			yaml: "types:\n  - {name: E, kind: enum}\n",
			want: "enum declares no constants",
		},
		{
			name: "redeclared member",
			yaml: "types:\n  - {name: I, kind: interface, members: [{name: x, type: string}]}\n  - {name: A, kind: entity, extends: [I], members: [{name: x, type: string}]}\n",
			want: "member already declared by I",
		},
		{
			name: "reserved member",
			yaml: "types:\n  - {name: A, kind: entity, members: [{name: identity, type: string}]}\n",
			want: "member name is reserved",
		},
		{
			name: "collection association",
			yaml: "types:\n  - {name: A, kind: entity, members: [{name: b, kind: association, type: list<A>}]}\n",
			want: "association type cannot be a collection",
		},
		{
			name: "bad type expression",
			yaml: "types:\n  - {name: A, kind: entity, members: [{name: b, type: list<>}]}\n",
			want: "invalid type expression",
		},
		{
			name: "shadowed scalar",
			yaml: "types:\n  - {name: string, kind: entity}\n",
			want: "shadows a scalar type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := metadata.ParseSchema([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, metadata.IsConfigError(err), "got %v", err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSchemaMembersAndAssignable(t *testing.T) {
	s := fixtureSchema(t)

	dm, ok := s.FindMember("Male", "name")
	require.True(t, ok)
	assert.Equal(t, metadata.NewQualifiedName("Nameable", "name"), dm.QName())

	_, ok = s.FindMember("City", "wife")
	assert.False(t, ok)

	assert.True(t, s.Assignable("Male", "Nameable"))
	assert.True(t, s.Assignable("Male", "Male"))
	assert.False(t, s.Assignable("City", "Person"))
	assert.False(t, s.Assignable("Ghost", "Ghost"))

	var names []string
	for _, e := range s.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Male", "Female", "City", "Domain", "Cat"}, names)
}

func TestParseTypeExpr(t *testing.T) {
	e, err := metadata.ParseTypeExpr("list<set<integer>>")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Depth())
	assert.Equal(t, "integer", e.Base)
	assert.Equal(t, "list<set<integer>>", e.String())

	_, err = metadata.ParseTypeExpr("map<string>")
	assert.Error(t, err)
}

func TestQualifiedName(t *testing.T) {
	q, err := metadata.ParseQualifiedName("Person:email")
	require.NoError(t, err)
	assert.Equal(t, metadata.NewQualifiedName("Person", "email"), q)
	assert.Equal(t, "Person:email", q.String())

	_, err = metadata.ParseQualifiedName("email")
	assert.Error(t, err)
	assert.True(t, metadata.Identity.IsIdentity())
}

func TestCoerceScalar(t *testing.T) {
	ok := []struct {
		kind metadata.ScalarKind
		in   any
		want any
	}{
		{metadata.ScalarString, "x", "x"},
		{metadata.ScalarInteger, 7, int64(7)},
		{metadata.ScalarInteger, float64(7), int64(7)},
		{metadata.ScalarLong, int64(math.MaxInt64), int64(math.MaxInt64)},
		{metadata.ScalarDouble, 2, float64(2)},
		{metadata.ScalarDouble, 2.5, 2.5},
		{metadata.ScalarBoolean, true, true},
		{metadata.ScalarDateTime, "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{metadata.ScalarDateTime, "2024-03-01T10:00:00+02:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range ok {
		got, err := metadata.CoerceScalar(tc.kind, tc.in)
		require.NoError(t, err, "%s %v", tc.kind, tc.in)
		assert.Equal(t, tc.want, got)
	}

	bad := []struct {
		kind metadata.ScalarKind
		in   any
	}{
		{metadata.ScalarString, 1},
		{metadata.ScalarInteger, 1.5},
		{metadata.ScalarInteger, int64(math.MaxInt32) + 1},
		{metadata.ScalarLong, 1e19},
		{metadata.ScalarLong, 1e300},
		{metadata.ScalarLong, math.Inf(-1)},
		{metadata.ScalarBoolean, "true"},
		{metadata.ScalarDateTime, "yesterday"},
		{metadata.ScalarKind("uuid"), "x"},
	}
	for _, tc := range bad {
		_, err := metadata.CoerceScalar(tc.kind, tc.in)
		assert.ErrorIs(t, err, metadata.ErrInvalidValue, "%s %v", tc.kind, tc.in)
	}
}
