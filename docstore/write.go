package docstore

import "time"

// Precondition guards a write against the current state of the document.
type Precondition struct {
	Exists     *bool      `json:"exists,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`
}

// MustExist fails the write when the document is missing.
func MustExist() *Precondition {
	exists := true
	return &Precondition{Exists: &exists}
}

// UpdatedAt fails the write when the document changed after t.
func UpdatedAt(t time.Time) *Precondition {
	t = t.UTC()
	return &Precondition{UpdateTime: &t}
}

// DocumentMask names the fields a write touches.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

// ArrayValue is the operand of an array transform.
type ArrayValue struct {
	Values []Value `json:"values"`
}

// FieldTransform is a server-side, atomic change to one field.
type FieldTransform struct {
	FieldPath             string      `json:"fieldPath"`
	AppendMissingElements *ArrayValue `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *ArrayValue `json:"removeAllFromArray,omitempty"`
	SetToServerValue      string      `json:"setToServerValue,omitempty"`
}

// AppendMissing adds each value to the array at path unless already present.
func AppendMissing(path string, values ...Value) FieldTransform {
	return FieldTransform{FieldPath: path, AppendMissingElements: &ArrayValue{Values: nonNil(values)}}
}

// RemoveAll removes every occurrence of each value from the array at path.
func RemoveAll(path string, values ...Value) FieldTransform {
	return FieldTransform{FieldPath: path, RemoveAllFromArray: &ArrayValue{Values: nonNil(values)}}
}

// ServerTime sets path to the commit time.
func ServerTime(path string) FieldTransform {
	return FieldTransform{FieldPath: path, SetToServerValue: "REQUEST_TIME"}
}

func nonNil(values []Value) []Value {
	if values == nil {
		return []Value{}
	}
	return values
}

// DocumentTransform is a transform-only write.
type DocumentTransform struct {
	Document        string           `json:"document"`
	FieldTransforms []FieldTransform `json:"fieldTransforms"`
}

type documentBody struct {
	Name   string `json:"name,omitempty"`
	Fields Fields `json:"fields"`
}

// Write is one operation of an atomic commit. Exactly one of Update and
// Transform is set.
type Write struct {
	Update           *documentBody      `json:"update,omitempty"`
	Transform        *DocumentTransform `json:"transform,omitempty"`
	UpdateMask       *DocumentMask      `json:"updateMask,omitempty"`
	UpdateTransforms []FieldTransform   `json:"updateTransforms,omitempty"`
	CurrentDocument  *Precondition      `json:"currentDocument,omitempty"`
}

// WithTransforms adds field transforms applied after an update.
func (w Write) WithTransforms(transforms ...FieldTransform) Write {
	w.UpdateTransforms = append(w.UpdateTransforms, transforms...)
	return w
}

// If attaches a precondition to the write.
func (w Write) If(p *Precondition) Write {
	w.CurrentDocument = p
	return w
}

// WriteResult is the outcome of one Write.
type WriteResult struct {
	UpdateTime       time.Time `json:"updateTime"`
	TransformResults []Value   `json:"transformResults"`
}

// CommitResult is the outcome of an atomic commit.
type CommitResult struct {
	WriteResults []WriteResult `json:"writeResults"`
	CommitTime   time.Time     `json:"commitTime"`
}
