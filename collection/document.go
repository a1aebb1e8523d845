package collection

import (
	"maps"
	"slices"
)

type Document struct {
	id     string
	fields map[string]any
	frozen bool
}

func (d *Document) ID() string { return d.id }

func (d *Document) Get(key string) any {
	if key == "_id" {
		return d.id
	}
	return d.fields[key]
}

// Set changes a field of the local copy. Frozen documents refuse.
func (d *Document) Set(key string, v any) error {
	if d.frozen {
		return ErrFrozen
	}

	d.fields[key] = v
	return nil
}

// Fields returns a copy of the fields.
func (d *Document) Fields() map[string]any {
	return copyValue(d.fields).(map[string]any)
}

// Keys returns the field names, sorted.
func (d *Document) Keys() []string {
	return slices.Sorted(maps.Keys(d.fields))
}

func (d *Document) Frozen() bool { return d.frozen }

// Freeze returns a frozen copy of the document.
func (d *Document) Freeze() any {
	return &Document{
		id:     d.id,
		fields: copyValue(d.fields).(map[string]any),
		frozen: true,
	}
}

// Documents is a fetched result set.
type Documents []*Document

// Freeze returns frozen copies of every document.
func (ds Documents) Freeze() any {
	out := make(Documents, len(ds))
	for i, d := range ds {
		out[i] = d.Freeze().(*Document)
	}
	return out
}

// IDs returns the document ids in order.
func (ds Documents) IDs() []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.id
	}
	return ids
}

// Pluck returns the value of key for every document.
func (ds Documents) Pluck(key string) []any {
	out := make([]any, len(ds))
	for i, d := range ds {
		out[i] = d.Get(key)
	}
	return out
}

// copyValue copies decoded JSON values.
func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
