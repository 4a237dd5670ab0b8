package metadata

import (
	"errors"
	"strconv"
)

// DefaultTablePrefix is prepended to the sequence number of every qualified-name table.
const DefaultTablePrefix = "qname_"

// BuildOptions tunes registry construction.
type BuildOptions struct {
	TablePrefix string
}

type builder struct {
	schema     *Schema
	prior      Snapshot
	reg        *Registry
	usedTables map[string]bool
	nextTable  int
	nextType   int
	nextClass  int
	nextEnum   int
}

// Build walks every entity type of the schema and produces the registry.
// Ids and table names found in prior are reused; new ones are allocated past
// the highest persisted value, in first-seen order, so rebuilding against the
// same snapshot always yields the same names. Build either returns a complete
// registry or an error, never a partial registry.
func Build(schema *Schema, prior Snapshot, opts BuildOptions) (*Registry, error) {
	if schema == nil || schema.index == nil {
		return nil, errors.New("build registry: schema has not been validated")
	}
	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}

	b := &builder{
		schema: schema,
		prior:  prior,
		reg: &Registry{
			schema:      schema,
			prefix:      prefix,
			descriptors: make(map[QualifiedName]*Descriptor),
			members:     make(map[string][]QualifiedName),
			enums:       make(map[EnumConstant]int),
			classes:     make(map[string]int),
		},
		usedTables: make(map[string]bool, len(prior.TableNames)),
		nextTable:  nextTableSeq(prior.TableNames, prefix),
		nextType:   maxID(prior.TypeIDs) + 1,
		nextClass:  maxID(prior.ClassIDs) + 1,
		nextEnum:   maxID(prior.EnumIDs) + 1,
	}
	for _, name := range prior.TableNames {
		b.usedTables[name] = true
	}

	typeIDs := make(map[string]int)
	for _, e := range schema.Entities() {
		id, ok := prior.TypeIDs[e.Name]
		if !ok {
			id = b.nextType
			b.nextType++
		}
		typeIDs[e.Name] = id
	}
	b.reg.types = newTypeRegistry(schema, typeIDs)

	for _, e := range schema.Entities() {
		if err := b.visitEntity(e); err != nil {
			return nil, err
		}
	}
	return b.reg, nil
}

func (b *builder) visitEntity(e *TypeDef) error {
	members := b.schema.Members(e.Name)
	var out []QualifiedName
	for _, pass := range []MemberKind{MemberProperty, MemberAssociation, MemberManyAssociation} {
		for _, dm := range members {
			if dm.Member.Kind != pass || !dm.Member.IsQueryable() {
				continue
			}
			var err error
			if pass == MemberProperty {
				err = b.visitProperty(dm)
			} else {
				err = b.visitAssociation(dm)
			}
			if err != nil {
				return err
			}
			out = append(out, dm.QName())
		}
	}
	b.reg.members[e.Name] = out
	return nil
}

func (b *builder) visitProperty(dm DeclaredMember) error {
	q := dm.QName()
	if _, done := b.reg.descriptors[q]; done {
		return nil
	}
	expr, err := ParseTypeExpr(dm.Member.Type)
	if err != nil {
		return configErrorf(q.String(), "%v", err)
	}

	d := &Descriptor{QName: q, Kind: Property, CollectionDepth: expr.Depth()}
	if scalar, ok := LookupScalar(expr.Base); ok {
		d.Scalar = scalar
		b.register(d)
		return nil
	}

	target := b.schema.Type(expr.Base)
	switch {
	case target == nil:
		return configErrorf(q.String(), "final type %q is not registered", expr.Base)
	case target.Kind == KindEnum:
		d.EnumType = target.Name
		b.register(d)
		b.registerEnum(target)
		return nil
	case target.Kind == KindValue:
		d.ValueType = target.Name
		b.register(d)
		b.registerClass(target.Name)
		return b.visitValue(target)
	default:
		return configErrorf(q.String(), "final type %q is a %s type and cannot be stored in a property", expr.Base, target.Kind)
	}
}

func (b *builder) visitValue(v *TypeDef) error {
	if _, seen := b.reg.members[v.Name]; seen {
		return nil
	}
	// Mark before recursing so self-referencing value types terminate.
	b.reg.members[v.Name] = nil

	var out []QualifiedName
	for _, dm := range b.schema.Members(v.Name) {
		if !dm.Member.IsProperty() {
			return configErrorf(dm.QName().String(), "value types may only declare properties")
		}
		if !dm.Member.IsQueryable() {
			continue
		}
		if err := b.visitProperty(dm); err != nil {
			return err
		}
		out = append(out, dm.QName())
	}
	b.reg.members[v.Name] = out
	return nil
}

func (b *builder) visitAssociation(dm DeclaredMember) error {
	q := dm.QName()
	if _, done := b.reg.descriptors[q]; done {
		return nil
	}
	expr, err := ParseTypeExpr(dm.Member.Type)
	if err != nil {
		return configErrorf(q.String(), "%v", err)
	}
	target := b.schema.Type(expr.Base)
	if target == nil || !target.IsEntityLike() || expr.Depth() > 0 {
		return configErrorf(q.String(), "association target %q is not an entity type", dm.Member.Type)
	}

	kind := Association
	if dm.Member.Kind == MemberManyAssociation {
		kind = ManyAssociation
	}
	b.register(&Descriptor{QName: q, Kind: kind, TargetType: target.Name})
	return nil
}

func (b *builder) register(d *Descriptor) {
	if name, ok := b.prior.TableNames[d.QName]; ok {
		d.TableName = name
	} else {
		for {
			name := b.reg.prefix + strconv.Itoa(b.nextTable)
			b.nextTable++
			if !b.usedTables[name] {
				d.TableName = name
				break
			}
		}
	}
	b.usedTables[d.TableName] = true
	b.reg.descriptors[d.QName] = d
	b.reg.order = append(b.reg.order, d.QName)
}

func (b *builder) registerEnum(t *TypeDef) {
	for _, c := range t.Constants {
		key := EnumConstant{Type: t.Name, Value: c}
		if _, ok := b.reg.enums[key]; ok {
			continue
		}
		id, ok := b.prior.EnumIDs[key]
		if !ok {
			id = b.nextEnum
			b.nextEnum++
		}
		b.reg.enums[key] = id
	}
}

func (b *builder) registerClass(name string) {
	if _, ok := b.reg.classes[name]; ok {
		return
	}
	id, ok := b.prior.ClassIDs[name]
	if !ok {
		id = b.nextClass
		b.nextClass++
	}
	b.reg.classes[name] = id
}
