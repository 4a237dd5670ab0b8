package metadata

// TypeKind classifies a declared type.
type TypeKind string

const (
	KindEntity    TypeKind = "entity"    // concrete, indexed
	KindInterface TypeKind = "interface" // abstract supertype of entities
	KindValue     TypeKind = "value"     // embedded value object
	KindEnum      TypeKind = "enum"
)

// TypeDef declares one type of the object model.
type TypeDef struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      TypeKind `yaml:"kind" json:"kind"`
	Extends   []string `yaml:"extends,omitempty" json:"extends,omitempty"`
	Members   []Member `yaml:"members,omitempty" json:"members,omitempty"`
	Constants []string `yaml:"constants,omitempty" json:"constants,omitempty"`
}

// GetMember returns the member declared directly on this type, or nil.
func (t *TypeDef) GetMember(name string) *Member {
	for i := range t.Members {
		if t.Members[i].Name == name {
			return &t.Members[i]
		}
	}
	return nil
}

// HasConstant returns true if an enum type declares the given constant.
func (t *TypeDef) HasConstant(name string) bool {
	for _, c := range t.Constants {
		if c == name {
			return true
		}
	}
	return false
}

// IsEntity returns true for concrete entity types.
func (t *TypeDef) IsEntity() bool { return t.Kind == KindEntity }

// IsEntityLike returns true for types an association may point at.
func (t *TypeDef) IsEntityLike() bool {
	return t.Kind == KindEntity || t.Kind == KindInterface
}

// DeclaredMember is a member together with the type that declares it.
type DeclaredMember struct {
	Declarer string
	Member   Member
}

// QName returns the member's qualified name.
func (d DeclaredMember) QName() QualifiedName {
	return QualifiedName{Type: d.Declarer, Name: d.Member.Name}
}
