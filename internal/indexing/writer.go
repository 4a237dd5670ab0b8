// Package indexing writes entity state into the qualified-name tables the
// query compiler reads.
package indexing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"qindex/internal/metadata"
	"qindex/internal/store"
)

// Writer indexes and removes entities. Every call runs in one transaction.
type Writer struct {
	store      *store.Store
	reg        *metadata.Registry
	appVersion string
}

func NewWriter(s *store.Store, reg *metadata.Registry, appVersion string) *Writer {
	return &Writer{store: s, reg: reg, appVersion: appVersion}
}

// Index stores the given states, replacing whatever was indexed before under
// the same identities. It returns the states as written, with defaulted
// identities, versions and modification times filled in.
func (w *Writer) Index(ctx context.Context, states ...EntityState) ([]EntityState, error) {
	out := make([]EntityState, len(states))
	err := w.store.InTx(ctx, func(tx *sql.Tx) error {
		for i, st := range states {
			written, err := w.indexOne(ctx, tx, st)
			if err != nil {
				return fmt.Errorf("index %s %q: %w", st.Type, st.Identity, err)
			}
			out[i] = written
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Indexed %d entities", len(out))
	return out, nil
}

// Remove deletes the given identities from the index and returns how many
// were present.
func (w *Writer) Remove(ctx context.Context, identities ...string) (int, error) {
	removed := 0
	err := w.store.InTx(ctx, func(tx *sql.Tx) error {
		for _, identity := range identities {
			pk, found, err := w.lookup(ctx, tx, identity)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			if err := w.clearRows(ctx, tx, pk); err != nil {
				return err
			}
			pb := w.store.Dialect.NewParamBuilder()
			if _, err := store.Exec(ctx, tx, "DELETE FROM entities WHERE entity_pk = "+pb.Add(pk), pb.Params()...); err != nil {
				return fmt.Errorf("delete entity %q: %w", identity, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("Removed %d entities from the index", removed)
	}
	return removed, nil
}

func (w *Writer) indexOne(ctx context.Context, tx *sql.Tx, st EntityState) (EntityState, error) {
	typeID, ok := w.reg.Types().ID(st.Type)
	if !ok {
		return st, fmt.Errorf("%w: %s", metadata.ErrUnknownType, st.Type)
	}
	if st.Identity == "" {
		st.Identity = uuid.NewString()
	}
	if st.Version == "" {
		st.Version = uuid.NewString()
	}
	if st.Modified.IsZero() {
		st.Modified = time.Now().UTC()
	}
	if err := w.checkMembers(st); err != nil {
		return st, err
	}

	d := w.store.Dialect
	pk, found, err := w.lookup(ctx, tx, st.Identity)
	if err != nil {
		return st, err
	}
	if found {
		if err := w.clearRows(ctx, tx, pk); err != nil {
			return st, err
		}
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("UPDATE entities SET entity_type_id = %s, modified = %s, entity_version = %s, app_version = %s WHERE entity_pk = %s",
			pb.Add(typeID), pb.Add(st.Modified), pb.Add(st.Version), pb.Add(w.appVersion), pb.Add(pk))
		if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return st, fmt.Errorf("update entity: %w", err)
		}
	} else {
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("INSERT INTO entities (entity_type_id, entity_identity, modified, entity_version, app_version) VALUES (%s, %s, %s, %s, %s) RETURNING entity_pk",
			pb.Add(typeID), pb.Add(st.Identity), pb.Add(st.Modified), pb.Add(st.Version), pb.Add(w.appVersion))
		if err := tx.QueryRowContext(ctx, stmt, pb.Params()...).Scan(&pk); err != nil {
			return st, fmt.Errorf("insert entity: %w", store.MapError(d, err))
		}
	}

	rw := &rowWriter{ctx: ctx, tx: tx, dialect: d, reg: w.reg, pk: pk}
	if err := rw.entity(st); err != nil {
		return st, err
	}
	return st, nil
}

// checkMembers rejects state keys the schema does not declare on the type.
// Declared members that are not queryable are accepted and ignored.
func (w *Writer) checkMembers(st EntityState) error {
	schema := w.reg.Schema()
	check := func(name string, want metadata.MemberKind) error {
		dm, ok := schema.FindMember(st.Type, name)
		if !ok {
			return fmt.Errorf("%w: %s declares no member %q", metadata.ErrInvalidValue, st.Type, name)
		}
		kind := dm.Member.Kind
		if kind == "" {
			kind = metadata.MemberProperty
		}
		if kind != want {
			return fmt.Errorf("%w: %s is a %s, not a %s", metadata.ErrInvalidValue, dm.QName(), kind, want)
		}
		return nil
	}
	for name := range st.Properties {
		if err := check(name, metadata.MemberProperty); err != nil {
			return err
		}
	}
	for name := range st.Associations {
		if err := check(name, metadata.MemberAssociation); err != nil {
			return err
		}
	}
	for name := range st.ManyAssociations {
		if err := check(name, metadata.MemberManyAssociation); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) lookup(ctx context.Context, tx *sql.Tx, identity string) (int64, bool, error) {
	pb := w.store.Dialect.NewParamBuilder()
	var pk int64
	err := tx.QueryRowContext(ctx, "SELECT entity_pk FROM entities WHERE entity_identity = "+pb.Add(identity), pb.Params()...).Scan(&pk)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("look up entity %q: %w", identity, err)
	}
	return pk, true, nil
}

// clearRows deletes every indexed row of the entity but keeps the entity row.
func (w *Writer) clearRows(ctx context.Context, tx *sql.Tx, pk int64) error {
	d := w.store.Dialect
	tables := make([]string, 0, len(w.reg.Descriptors())+1)
	for _, desc := range w.reg.Descriptors() {
		tables = append(tables, desc.TableName)
	}
	tables = append(tables, metadata.TableAllQNames)
	for _, table := range tables {
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("DELETE FROM %s WHERE entity_pk = %s", d.QuoteIdent(table), pb.Add(pk))
		if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// rowWriter writes the rows of one entity. Row ids (qname_id) are numbered
// from zero per entity, in member storage order.
type rowWriter struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect store.Dialect
	reg     *metadata.Registry
	pk      int64
	next    int
}

func (rw *rowWriter) entity(st EntityState) error {
	for _, qn := range rw.reg.EntityMembers(st.Type) {
		d, err := rw.reg.Describe(qn)
		if err != nil {
			return err
		}
		switch d.Kind {
		case metadata.Property:
			if err := rw.property(d, st.Properties[qn.Name], nil); err != nil {
				return err
			}
		case metadata.Association:
			if target := st.Associations[qn.Name]; target != "" {
				if _, err := rw.row(d, nil, "", nil, target); err != nil {
					return err
				}
			}
		case metadata.ManyAssociation:
			for i, target := range st.ManyAssociations[qn.Name] {
				idx := i
				if _, err := rw.row(d, nil, "", &idx, target); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (rw *rowWriter) property(d *metadata.Descriptor, v any, parent *int) error {
	if v == nil {
		return nil
	}
	if !d.IsCollection() {
		return rw.single(d, v, parent, "")
	}
	items, ok := asSlice(v)
	if !ok {
		return fmt.Errorf("%w: %s expects a list, got %T", metadata.ErrInvalidValue, d.QName, v)
	}
	if _, err := rw.row(d, parent, metadata.CollectionRoot, nil, nil); err != nil {
		return err
	}
	return rw.items(d, items, parent, metadata.CollectionRoot, 1)
}

// items writes one collection level. Inner levels get a row of their own
// labelled with the item position; leaves carry the item value.
func (rw *rowWriter) items(d *metadata.Descriptor, items []any, parent *int, label string, depth int) error {
	for i, item := range items {
		if item == nil {
			continue
		}
		itemLabel := label + metadata.CollectionSeparator + strconv.Itoa(i)
		if depth == d.CollectionDepth {
			if err := rw.single(d, item, parent, itemLabel); err != nil {
				return err
			}
			continue
		}
		nested, ok := asSlice(item)
		if !ok {
			return fmt.Errorf("%w: %s expects a nested list at %s, got %T", metadata.ErrInvalidValue, d.QName, itemLabel, item)
		}
		if _, err := rw.row(d, parent, itemLabel, nil, nil); err != nil {
			return err
		}
		if err := rw.items(d, nested, parent, itemLabel, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (rw *rowWriter) single(d *metadata.Descriptor, v any, parent *int, label string) error {
	switch {
	case d.IsEnum():
		name, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %s constants are strings, got %T", metadata.ErrInvalidValue, d.EnumType, v)
		}
		id, ok := rw.reg.EnumID(d.EnumType, name)
		if !ok {
			return fmt.Errorf("%w: %q is not a constant of %s", metadata.ErrInvalidValue, name, d.EnumType)
		}
		_, err := rw.row(d, parent, label, nil, int64(id))
		return err

	case d.IsValue():
		fields, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s expects a %s object, got %T", metadata.ErrInvalidValue, d.QName, d.ValueType, v)
		}
		classID, _ := rw.reg.ClassID(d.ValueType)
		id, err := rw.row(d, parent, label, nil, int64(classID))
		if err != nil {
			return err
		}
		return rw.value(d.ValueType, fields, id)

	default:
		coerced, err := metadata.CoerceScalar(d.Scalar, v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.QName, err)
		}
		_, err = rw.row(d, parent, label, nil, coerced)
		return err
	}
}

func (rw *rowWriter) value(valueType string, fields map[string]any, parent int) error {
	members := rw.reg.ValueMembers(valueType)
	known := make(map[string]bool, len(members))
	for _, qn := range members {
		known[qn.Name] = true
	}
	var unknown []string
	for name := range fields {
		if !known[name] {
			if _, declared := rw.reg.Schema().FindMember(valueType, name); !declared {
				unknown = append(unknown, name)
			}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s declares no member %s", metadata.ErrInvalidValue, valueType, strings.Join(unknown, ", "))
	}

	for _, qn := range members {
		d, err := rw.reg.Describe(qn)
		if err != nil {
			return err
		}
		if err := rw.property(d, fields[qn.Name], &parent); err != nil {
			return err
		}
	}
	return nil
}

// row inserts the all_qnames row and the descriptor row and returns the new qname_id.
func (rw *rowWriter) row(d *metadata.Descriptor, parent *int, label string, index *int, value any) (int, error) {
	id := rw.next
	rw.next++

	pb := rw.dialect.NewParamBuilder()
	stmt := fmt.Sprintf("INSERT INTO %s (qname_id, entity_pk) VALUES (%s, %s)",
		metadata.TableAllQNames, pb.Add(id), pb.Add(rw.pk))
	if _, err := store.Exec(rw.ctx, rw.tx, stmt, pb.Params()...); err != nil {
		return 0, fmt.Errorf("insert qname row: %w", err)
	}

	pb = rw.dialect.NewParamBuilder()
	cols := d.Columns()
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		var arg any
		switch col {
		case metadata.ColQNameID:
			arg = id
		case metadata.ColEntityPK:
			arg = rw.pk
		case metadata.ColParentQName:
			if parent != nil {
				arg = *parent
			}
		case metadata.ColCollectionPath:
			arg = label
		case metadata.ColAssoIndex:
			if index != nil {
				arg = *index
			}
		case metadata.ColValue:
			arg = value
		}
		placeholders[i] = pb.Add(arg)
	}
	stmt = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		rw.dialect.QuoteIdent(d.TableName), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := store.Exec(rw.ctx, rw.tx, stmt, pb.Params()...); err != nil {
		return 0, fmt.Errorf("insert %s row: %w", d.QName, err)
	}
	return id, nil
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}
