package metadata

// Physical names shared by schema sync, the row writer and the compiler.
const (
	TableEntities    = "entities"
	TableEntityTypes = "entity_types"
	TableUsedClasses = "used_classes"
	TableEnumLookup  = "enum_lookup"
	TableUsedQNames  = "used_qnames"
	TableAllQNames   = "all_qnames"
	TableAppVersion  = "app_version"

	ColEntityPK       = "entity_pk"
	ColEntityTypeID   = "entity_type_id"
	ColEntityIdentity = "entity_identity"
	ColModified       = "modified"
	ColEntityVersion  = "entity_version"
	ColAppVersion     = "app_version"

	ColQNameID        = "qname_id"
	ColParentQName    = "parent_qname"
	ColCollectionPath = "collection_path"
	ColAssoIndex      = "asso_index"
	ColValue          = "value"
)

// Collection path labels. Items of a collection are labelled Top.0, Top.1 and
// nested collections extend the label further.
const (
	CollectionRoot      = "Top"
	CollectionSeparator = "."
)

// Columns returns the columns of the descriptor's table in creation order.
func (d *Descriptor) Columns() []string {
	cols := []string{ColQNameID, ColEntityPK}
	if d.HasParentColumn() {
		cols = append(cols, ColParentQName)
	}
	if d.IsCollection() {
		cols = append(cols, ColCollectionPath)
	}
	if d.Kind == ManyAssociation {
		cols = append(cols, ColAssoIndex)
	}
	return append(cols, ColValue)
}

// StorageType names the type of the value column: a scalar kind, "integer"
// for enum and value-class ids, or "string" for association targets.
func (d *Descriptor) StorageType() string {
	switch {
	case d.Kind != Property:
		return string(ScalarString)
	case d.IsEnum(), d.IsValue():
		return string(ScalarInteger)
	default:
		return string(d.Scalar)
	}
}
