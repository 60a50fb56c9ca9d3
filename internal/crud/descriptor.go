// Package crud is the generic query and mutation layer shared by every
// resource type: paginated listing with search and filters, faceted value
// counts, and audited create/update/soft-delete/restore with change events.
package crud

import (
	"fmt"
	"slices"

	"github.com/simp-lee/rbacflow/internal/pkg"
)

// Kind is the value type of an entity field.
type Kind int

const (
	KindString Kind = iota
	KindEnum
	KindBool
	KindInt
	KindTime
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field describes one wire-visible field of an entity.
type Field struct {
	// Name is the wire name used in query strings and patches (camelCase).
	Name string
	// Column is the storage column name.
	Column string
	Kind   Kind

	Filterable bool
	Searchable bool
	Sortable   bool
	Mutable    bool
	Nullable   bool

	// Enum lists the accepted values of a KindEnum field.
	Enum []string
	// Rules are validator tags checked against non-null patch values,
	// e.g. "email,max=255".
	Rules string
}

// Descriptor is the per-entity field whitelist consulted by the query and
// mutation layers.
type Descriptor struct {
	entityType string
	fields     []Field
	byName     map[string]int
}

// Wire names of the audit fields every entity carries.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldDeletedAt = "deletedAt"
	FieldCreatedBy = "createdBy"
	FieldUpdatedBy = "updatedBy"
	FieldIsActive  = "isActive"
	FieldMetadata  = "metadata"
	FieldRevision  = "revision"
)

// readOnlyFields can never be written through a patch.
var readOnlyFields = []string{FieldID, FieldCreatedAt, FieldUpdatedAt, FieldDeletedAt, FieldCreatedBy, FieldUpdatedBy}

func baseFields() []Field {
	return []Field{
		{Name: FieldID, Column: "id", Kind: KindString, Filterable: true, Sortable: true},
		{Name: FieldCreatedAt, Column: "created_at", Kind: KindTime, Filterable: true, Sortable: true},
		{Name: FieldUpdatedAt, Column: "updated_at", Kind: KindTime, Filterable: true, Sortable: true},
		{Name: FieldCreatedBy, Column: "created_by", Kind: KindString, Filterable: true, Nullable: true},
		{Name: FieldUpdatedBy, Column: "updated_by", Kind: KindString, Filterable: true, Nullable: true},
		{Name: FieldIsActive, Column: "is_active", Kind: KindBool, Filterable: true, Sortable: true, Mutable: true},
		{Name: FieldMetadata, Column: "metadata", Kind: KindJSON, Mutable: true, Nullable: true},
		{Name: FieldRevision, Column: "revision", Kind: KindInt, Sortable: true},
	}
}

// NewDescriptor builds the descriptor of entityType from its own fields;
// the audit fields shared by all entities are added automatically.
// It panics on a malformed field list, since descriptors are static
// configuration wired at startup.
func NewDescriptor(entityType string, fields ...Field) *Descriptor {
	if entityType == "" {
		panic("crud.NewDescriptor: entity type must not be empty")
	}
	all := append(baseFields(), fields...)
	d := &Descriptor{
		entityType: entityType,
		fields:     all,
		byName:     make(map[string]int, len(all)),
	}
	for i, f := range all {
		if err := f.check(); err != nil {
			panic(fmt.Sprintf("crud.NewDescriptor(%s): %v", entityType, err))
		}
		if _, dup := d.byName[f.Name]; dup {
			panic(fmt.Sprintf("crud.NewDescriptor(%s): duplicate field %q", entityType, f.Name))
		}
		d.byName[f.Name] = i
	}
	return d
}

func (f Field) check() error {
	switch {
	case f.Name == "":
		return fmt.Errorf("field name must not be empty")
	case !pkg.ValidColumn(f.Column):
		return fmt.Errorf("field %q has invalid column %q", f.Name, f.Column)
	case f.Searchable && f.Kind != KindString && f.Kind != KindEnum:
		return fmt.Errorf("field %q of kind %s cannot be searchable", f.Name, f.Kind)
	case f.Kind == KindJSON && (f.Filterable || f.Sortable || f.Searchable):
		return fmt.Errorf("json field %q can only be mutable", f.Name)
	case f.Kind == KindEnum && len(f.Enum) == 0:
		return fmt.Errorf("enum field %q has no values", f.Name)
	}
	return nil
}

// EntityType returns the logical type name used in events, e.g. "approval".
func (d *Descriptor) EntityType() string {
	return d.entityType
}

// Field looks up a field by wire name.
func (d *Descriptor) Field(name string) (Field, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Field{}, false
	}
	return d.fields[i], true
}

// Fields returns all fields in declaration order, audit fields first.
func (d *Descriptor) Fields() []Field {
	return slices.Clone(d.fields)
}

func isReadOnly(name string) bool {
	return slices.Contains(readOnlyFields, name)
}
