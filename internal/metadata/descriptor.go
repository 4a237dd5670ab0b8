package metadata

// Kind is the storage kind of a qualified name.
type Kind int

const (
	Property Kind = iota
	Association
	ManyAssociation
)

func (k Kind) String() string {
	switch k {
	case Property:
		return "property"
	case Association:
		return "association"
	case ManyAssociation:
		return "many_association"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Descriptor is the physical storage metadata of one qualified name.
type Descriptor struct {
	QName           QualifiedName `json:"qname"`
	TableName       string        `json:"table_name"`
	Kind            Kind          `json:"kind"`
	CollectionDepth int           `json:"collection_depth"`

	// Exactly one of the following is set for properties.
	Scalar    ScalarKind `json:"scalar,omitempty"`
	EnumType  string     `json:"enum_type,omitempty"`
	ValueType string     `json:"value_type,omitempty"`

	// TargetType is the referenced entity or interface type of an association.
	TargetType string `json:"target_type,omitempty"`
}

// IsEnum returns true if the value column holds enum lookup ids.
func (d *Descriptor) IsEnum() bool { return d.EnumType != "" }

// IsValue returns true if the final type is a nested value object.
func (d *Descriptor) IsValue() bool { return d.ValueType != "" }

// IsCollection returns true if the property is a (possibly nested) collection.
func (d *Descriptor) IsCollection() bool { return d.CollectionDepth > 0 }

// HasParentColumn returns true if rows carry parent_qname.
func (d *Descriptor) HasParentColumn() bool { return d.Kind == Property }
