package query

import (
	"fmt"
	"strings"

	"qindex/internal/metadata"
)

// Path is a chain of qualified names starting at an entity type. Every step
// but the last must be a single-valued association or a non-collection
// value-typed property. The identity member may only appear last.
type Path struct {
	Steps []metadata.QualifiedName
}

func NewPath(steps ...metadata.QualifiedName) Path {
	return Path{Steps: steps}
}

func (p Path) String() string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

func (p Path) IsZero() bool { return len(p.Steps) == 0 }

// Last returns the final step.
func (p Path) Last() metadata.QualifiedName {
	if len(p.Steps) == 0 {
		return metadata.QualifiedName{}
	}
	return p.Steps[len(p.Steps)-1]
}

// ResolvePath turns "placeOfBirth.name" into qualified names, starting at the
// root entity or interface type. Resolution follows the schema only; whether
// every step is indexed is checked when the path is compiled.
func ResolvePath(schema *metadata.Schema, root, dotted string) (Path, error) {
	t := schema.Type(root)
	if t == nil || !t.IsEntityLike() {
		return Path{}, fmt.Errorf("%w: %s", metadata.ErrUnknownType, root)
	}
	if strings.TrimSpace(dotted) == "" {
		return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember, Reason: "empty path"}
	}

	segments := strings.Split(dotted, ".")
	path := Path{Steps: make([]metadata.QualifiedName, 0, len(segments))}
	current := root
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if current == "" {
			return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember,
				Reason: fmt.Sprintf("%q has no members", segments[i-1])}
		}
		if seg == metadata.IdentityMember {
			if i != len(segments)-1 {
				return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember, Reason: "identity must be the last segment"}
			}
			ct := schema.Type(current)
			if ct == nil || !ct.IsEntityLike() {
				return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember, Reason: fmt.Sprintf("%s has no identity", current)}
			}
			path.Steps = append(path.Steps, metadata.Identity)
			break
		}

		dm, ok := schema.FindMember(current, seg)
		if !ok {
			return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember, Reason: fmt.Sprintf("%s declares no member %q", current, seg)}
		}
		path.Steps = append(path.Steps, dm.QName())

		expr, err := metadata.ParseTypeExpr(dm.Member.Type)
		if err != nil {
			return Path{}, &PathError{Path: dotted, Err: ErrUnknownMember, Reason: err.Error()}
		}
		current = ""
		if next := schema.Type(expr.Base); next != nil && next.Kind != metadata.KindEnum {
			current = next.Name
		}
	}
	return path, nil
}
