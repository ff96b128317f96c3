package tour

import "strings"

// Field is an optional text attribute. The zero value is Unknown, which is
// distinct from a field that is Known to be empty.
type Field struct {
	value string
	known bool
}

// Known wraps a value that was positively learned (empty included).
func Known(v string) Field {
	return Field{value: v, known: true}
}

// Unknown returns a field with no opinion.
func Unknown() Field {
	return Field{}
}

// FromCell maps a tabular cell to a Field. Empty cells carry no opinion.
func FromCell(cell string) Field {
	if strings.TrimSpace(cell) == "" {
		return Unknown()
	}
	return Known(cell)
}

// IsKnown reports whether the field was set.
func (f Field) IsKnown() bool {
	return f.known
}

// Get returns the value and whether it is known.
func (f Field) Get() (string, bool) {
	return f.value, f.known
}

// String returns the value, or the empty string when unknown.
func (f Field) String() string {
	return f.value
}

// Empty reports whether the field holds no usable text.
func (f Field) Empty() bool {
	return strings.TrimSpace(f.value) == ""
}
