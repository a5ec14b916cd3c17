package fieldmap

import "slices"

// Lifecycle column names.
const (
	FieldIsDeleted = "is_deleted"
	FieldCreatedAt = "created_at"
	FieldEditedAt  = "edited_at"
	FieldDeletedAt = "deleted_at"
)

// Lifecycle selects the system-managed columns an entity carries.
type Lifecycle uint8

const (
	// AppendOnly rows are written once: created_at only.
	AppendOnly Lifecycle = iota
	// Editable rows track edited_at and are removed physically.
	Editable
	// SoftDeletable rows track edited_at and are deleted by flag.
	SoftDeletable
)

// Field is one encrypted column.
type Field struct {
	Name     string
	Type     SemanticType
	Required bool
	// System fields are managed by services and never accepted from callers.
	System bool
	// Default is written on create when the caller supplies nothing.
	Default Value
}

// HasDefault reports whether f declares a create-time default.
func (f Field) HasDefault() bool { return f.Default.kind != 0 }

// Entity describes one stored record type.
type Entity struct {
	// Resource names the entity in routes and audit entries.
	Resource string
	Table    string
	// Parent is the reference column that owns the record, if any.
	Parent string
	// Refs lists every plaintext integer reference column, Parent included.
	Refs []string
	// Display is the field recorded as audit notes on create.
	Display string
	// Collection keys a POI child in composite requests and dossiers.
	Collection string
	// UniqueParent allows at most one live record per parent.
	UniqueParent bool
	Lifecycle    Lifecycle
	Fields       []Field
}

// Field looks up a field by name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the encrypted column names in declaration order.
func (e *Entity) Columns() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Name)
	}
	return out
}

// InputFields returns the fields callers may set.
func (e *Entity) InputFields() []Field {
	out := make([]Field, 0, len(e.Fields))
	for _, f := range e.Fields {
		if !f.System {
			out = append(out, f)
		}
	}
	return out
}

func (e *Entity) SoftDeletes() bool { return e.Lifecycle == SoftDeletable }

func (e *Entity) TracksEdits() bool { return e.Lifecycle != AppendOnly }

// HasRef reports whether column is a reference column of e.
func (e *Entity) HasRef(column string) bool { return slices.Contains(e.Refs, column) }

func (e *Entity) withLifecycle() *Entity {
	if e.Parent != "" && !e.HasRef(e.Parent) {
		e.Refs = append([]string{e.Parent}, e.Refs...)
	}
	system := []Field{{Name: FieldCreatedAt, Type: DateTime, Required: true, System: true}}
	switch e.Lifecycle {
	case Editable:
		system = append(system, Field{Name: FieldEditedAt, Type: DateTime, System: true})
	case SoftDeletable:
		system = append(system,
			Field{Name: FieldEditedAt, Type: DateTime, System: true},
			Field{Name: FieldIsDeleted, Type: Boolean, Required: true, System: true, Default: BoolValue(false)},
			Field{Name: FieldDeletedAt, Type: DateTime, System: true},
		)
	}
	e.Fields = append(e.Fields, system...)
	return e
}
