package inject

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SurfaceKind is the fill strategy chosen for a located input element.
type SurfaceKind int

const (
	// SurfaceNone means the locator matched nothing.
	SurfaceNone SurfaceKind = iota
	// SurfacePlainField is a native value-bearing element (textarea, input).
	SurfacePlainField
	// SurfaceGenericEditable is a content-editable container without an
	// editor model behind it.
	SurfaceGenericEditable
	// SurfaceStructuredEditable is a content-editable container governed by a
	// rich-text editor that rebuilds its content from an internal model.
	SurfaceStructuredEditable
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceNone:
		return "none"
	case SurfacePlainField:
		return "plain_field"
	case SurfaceGenericEditable:
		return "generic_editable"
	case SurfaceStructuredEditable:
		return "structured_editable"
	default:
		return fmt.Sprintf("surface(%d)", int(k))
	}
}

// MarshalText lets SurfaceKind appear as a string in JSON and the dispatch log.
func (k SurfaceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the String form.
func (k *SurfaceKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*k = SurfaceNone
	case "plain_field":
		*k = SurfacePlainField
	case "generic_editable":
		*k = SurfaceGenericEditable
	case "structured_editable":
		*k = SurfaceStructuredEditable
	default:
		return fmt.Errorf("unknown surface kind %q", string(b))
	}
	return nil
}

// ElementShape is what the probe script observes about the located element.
type ElementShape struct {
	Found           bool   `json:"found"`
	TagName         string `json:"tag,omitempty"`
	ContentEditable string `json:"contentEditable,omitempty"`
	InStructured    bool   `json:"structured,omitempty"`

	// Diagnostics, only populated by the debug probe when nothing matched.
	Textareas int `json:"textareas,omitempty"`
	Editables int `json:"editables,omitempty"`
}

// Classify maps an observed element shape to a fill strategy. It looks only
// at the shape, never at which target the element belongs to.
func Classify(shape ElementShape) SurfaceKind {
	if !shape.Found {
		return SurfaceNone
	}
	if strings.EqualFold(shape.ContentEditable, "true") {
		if shape.InStructured {
			return SurfaceStructuredEditable
		}
		return SurfaceGenericEditable
	}
	return SurfacePlainField
}

// decodeShape accepts the probe result as either the JSON text the script
// returns or an already decoded object.
func decodeShape(v any) (ElementShape, error) {
	var raw []byte
	switch t := v.(type) {
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	case nil:
		return ElementShape{}, fmt.Errorf("probe returned no value")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ElementShape{}, fmt.Errorf("re-encode probe result: %w", err)
		}
		raw = b
	}

	var shape ElementShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return ElementShape{}, fmt.Errorf("decode probe result: %w", err)
	}
	return shape, nil
}
