package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qindex/internal/fixture"
	"qindex/internal/metadata"
)

func fixtureSchema(t *testing.T) *metadata.Schema {
	t.Helper()
	s, err := fixture.Schema()
	require.NoError(t, err)
	return s
}

func tableOf(t *testing.T, reg *metadata.Registry, typeName, member string) string {
	t.Helper()
	d, err := reg.Describe(metadata.NewQualifiedName(typeName, member))
	require.NoError(t, err)
	return d.TableName
}

func TestBuildAllocatesInStorageOrder(t *testing.T) {
	reg, err := metadata.Build(fixtureSchema(t), metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)

	want := []struct{ typ, member, table string }{
		{"Nameable", "name", "qname_0"},
		{"Person", "yearOfBirth", "qname_1"},
		{"Person", "email", "qname_2"},
		{"Person", "gender", "qname_3"},
		{"Person", "address", "qname_4"},
		{"Address", "street", "qname_5"},
		{"Address", "zipCode", "qname_6"},
		{"Person", "tags", "qname_7"},
		{"Person", "scores", "qname_8"},
		{"Person", "previousAddresses", "qname_9"},
		{"Person", "placeOfBirth", "qname_10"},
		{"Person", "mother", "qname_11"},
		{"Person", "father", "qname_12"},
		{"Male", "wife", "qname_13"},
		{"Person", "interests", "qname_14"},
		{"Female", "husband", "qname_15"},
		{"City", "country", "qname_16"},
		{"Domain", "description", "qname_17"},
	}
	require.Len(t, reg.Descriptors(), len(want))
	for i, w := range want {
		assert.Equal(t, w.table, tableOf(t, reg, w.typ, w.member), "%s:%s", w.typ, w.member)
		assert.Equal(t, w.table, reg.Descriptors()[i].TableName)
	}

	_, err = reg.Describe(metadata.NewQualifiedName("Person", "nickname"))
	assert.ErrorIs(t, err, metadata.ErrUnknownQName)
}

func TestBuildDescriptors(t *testing.T) {
	reg, err := metadata.Build(fixtureSchema(t), metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)

	describe := func(typ, member string) *metadata.Descriptor {
		d, err := reg.Describe(metadata.NewQualifiedName(typ, member))
		require.NoError(t, err)
		return d
	}

	scores := describe("Person", "scores")
	assert.Equal(t, metadata.Property, scores.Kind)
	assert.Equal(t, 2, scores.CollectionDepth)
	assert.Equal(t, metadata.ScalarInteger, scores.Scalar)
	assert.Equal(t, []string{"qname_id", "entity_pk", "parent_qname", "collection_path", "value"}, scores.Columns())

	gender := describe("Person", "gender")
	assert.Equal(t, "Gender", gender.EnumType)
	assert.Equal(t, "integer", gender.StorageType())

	interests := describe("Person", "interests")
	assert.Equal(t, metadata.ManyAssociation, interests.Kind)
	assert.Equal(t, "Domain", interests.TargetType)
	assert.Equal(t, []string{"qname_id", "entity_pk", "asso_index", "value"}, interests.Columns())
	assert.Equal(t, "string", interests.StorageType())

	prev := describe("Person", "previousAddresses")
	assert.Equal(t, "Address", prev.ValueType)
	assert.True(t, prev.IsCollection())

	assert.Equal(t, []metadata.QualifiedName{
		metadata.NewQualifiedName("Address", "street"),
		metadata.NewQualifiedName("Address", "zipCode"),
	}, reg.ValueMembers("Address"))

	members := reg.EntityMembers("Female")
	require.NotEmpty(t, members)
	assert.Equal(t, metadata.NewQualifiedName("Nameable", "name"), members[0])
	assert.Equal(t, metadata.NewQualifiedName("Person", "interests"), members[len(members)-1])

	id, ok := reg.EnumID("Gender", "FEMALE")
	assert.True(t, ok)
	assert.Equal(t, 2, id)
	classID, ok := reg.ClassID("Address")
	assert.True(t, ok)
	assert.Equal(t, 1, classID)
}

func TestTypeRegistry(t *testing.T) {
	reg, err := metadata.Build(fixtureSchema(t), metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)
	types := reg.Types()

	id, ok := types.ID("Male")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
	name, ok := types.Name(5)
	assert.True(t, ok)
	assert.Equal(t, "Cat", name)

	assert.Equal(t, []int{1, 2}, types.Expand("Person"))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, types.Expand("Nameable"))
	assert.Equal(t, []int{3}, types.Expand("City"))
	assert.Empty(t, types.Expand("Address"))
	assert.Empty(t, types.Expand("Nope"))
	assert.True(t, types.Known("Person"))
	assert.False(t, types.Known("Address"))

	expanded := types.Expand("Person")
	expanded[0] = 99
	assert.Equal(t, []int{1, 2}, types.Expand("Person"))
}

func TestBuildReusesSnapshot(t *testing.T) {
	first, err := metadata.Build(fixtureSchema(t), metadata.Snapshot{}, metadata.BuildOptions{})
	require.NoError(t, err)

	again, err := metadata.Build(fixtureSchema(t), first.Snapshot(), metadata.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot(), again.Snapshot())

	// A new type declared before the others must not shift existing names.
	s, err := metadata.ParseSchema(append([]byte(`
types:
  - name: Dog
    kind: entity
    extends: [Nameable]
    members:
      - name: breed
        type: string
`), fixture.SchemaYAML()[len("types:\n"):]...))
	require.NoError(t, err)

	grown, err := metadata.Build(s, first.Snapshot(), metadata.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, "qname_0", tableOf(t, grown, "Nameable", "name"))
	assert.Equal(t, "qname_18", tableOf(t, grown, "Dog", "breed"))
	dogID, _ := grown.Types().ID("Dog")
	assert.Equal(t, 6, dogID)
	maleID, _ := grown.Types().ID("Male")
	assert.Equal(t, 1, maleID)
}

func TestBuildSkipsTakenTableNames(t *testing.T) {
	prior := metadata.Snapshot{
		TableNames: map[metadata.QualifiedName]string{
			metadata.NewQualifiedName("Gone", "old"): "idx_0",
		},
	}
	s, err := metadata.ParseSchema([]byte(`
types:
  - name: Note
    kind: entity
    members:
      - name: text
        type: string
`))
	require.NoError(t, err)
	reg, err := metadata.Build(s, prior, metadata.BuildOptions{TablePrefix: "idx_"})
	require.NoError(t, err)
	assert.Equal(t, "idx_1", tableOf(t, reg, "Note", "text"))
	assert.Equal(t, "idx_", reg.TablePrefix())
}

func TestBuildRejectsUnvalidatedSchema(t *testing.T) {
	s := &metadata.Schema{Types: []*metadata.TypeDef{
		{Name: "Thing", Kind: metadata.KindEntity, Members: []metadata.Member{{Name: "owner", Type: "Thing"}}},
	}}
	_, err := metadata.Build(s, metadata.Snapshot{}, metadata.BuildOptions{})
	require.Error(t, err)

	err = s.Validate()
	require.Error(t, err)
	assert.True(t, metadata.IsConfigError(err))
	assert.Contains(t, err.Error(), "declare an association")
}
