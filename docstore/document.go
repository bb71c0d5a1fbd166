package docstore

import (
	"strings"
	"time"
)

// Fields is the field set of a document or of a map value.
type Fields map[string]Value

// Has reports whether name is present, whatever its kind.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// String returns the string field name, or "" when absent or of another kind.
func (f Fields) String(name string) string {
	return f[name].StringValue()
}

// StringOr is String with a fallback for absent or empty fields.
func (f Fields) StringOr(name, fallback string) string {
	if s := f.String(name); s != "" {
		return s
	}
	return fallback
}

// Strings returns the string elements of the array field name. Absent fields
// yield an empty, non-nil slice.
func (f Fields) Strings(name string) []string {
	return f[name].StringsValue()
}

// Time returns the timestamp field name and whether it was present.
func (f Fields) Time(name string) (time.Time, bool) {
	return f[name].TimeValue()
}

// Array returns the elements of the array field name.
func (f Fields) Array(name string) []Value {
	return f[name].ArrayValue()
}

// Map returns the fields of the map field name.
func (f Fields) Map(name string) Fields {
	return f[name].MapValue()
}

// Document is a stored document as returned by the store.
type Document struct {
	Name       string    `json:"name"`
	Fields     Fields    `json:"fields"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
}

// ID is the last segment of the document's resource name.
func (d *Document) ID() string {
	return DocumentID(d.Name)
}

// DocumentID returns the last path segment of a resource name.
func DocumentID(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
