package metadata

import (
	"fmt"
	"strings"
)

// IdentityMember is the reserved member name addressing an entity's own identity.
const IdentityMember = "identity"

// Identity is the qualified name of the identity member. It never has a descriptor;
// it maps to the identity column of the entity table.
var Identity = QualifiedName{Type: "Identity", Name: IdentityMember}

// QualifiedName addresses one member of a declared type.
type QualifiedName struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func NewQualifiedName(typeName, member string) QualifiedName {
	return QualifiedName{Type: typeName, Name: member}
}

// ParseQualifiedName parses the "Type:member" form produced by String.
func ParseQualifiedName(s string) (QualifiedName, error) {
	typeName, member, ok := strings.Cut(s, ":")
	if !ok || typeName == "" || member == "" {
		return QualifiedName{}, fmt.Errorf("invalid qualified name %q", s)
	}
	return QualifiedName{Type: typeName, Name: member}, nil
}

func (q QualifiedName) String() string {
	return q.Type + ":" + q.Name
}

// IsIdentity reports whether q is the reserved identity member.
func (q QualifiedName) IsIdentity() bool {
	return q == Identity
}
