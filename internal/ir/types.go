package ir

// Record is one stored row of an entity kind.
// Records returned by a fetch are values; callers must not mutate Fields.
type Record struct {
	ID     string   `json:"id"`
	Entity string   `json:"entity"`
	Fields IRObject `json:"fields"`
	Seq    int64    `json:"seq"` // Commit seq of the last write
}

// Field returns the named field value.
func (r Record) Field(name string) (IRValue, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// EntitySchema declares the fields of an entity kind.
type EntitySchema struct {
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"` // field name -> type name
}

// FieldType returns the declared type of a field.
func (s EntitySchema) FieldType(name string) (string, bool) {
	t, ok := s.Fields[name]
	return t, ok
}

// ValidFieldTypes defines the allowed entity field types.
var ValidFieldTypes = map[string]bool{
	TypeString: true,
	TypeInt:    true,
	TypeBool:   true,
}

// ChangeOp names the kind of write a change notification describes.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// SubscriptionHandle identifies one change-notification registration.
// Handles are comparable; two handles are the same registration iff equal.
type SubscriptionHandle struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	ContextID string `json:"context_id"`
}

// IsZero reports whether h is the zero handle (no registration).
func (h SubscriptionHandle) IsZero() bool {
	return h.ID == ""
}
