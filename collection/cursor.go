package collection

import (
	"context"
	"encoding/json"
	"reflect"
)

// Selector matches documents whose fields equal every entry.
type Selector map[string]any

func (s Selector) matches(doc *Document) bool {
	for key, want := range s {
		if key == "_id" {
			if doc.id != want {
				return false
			}
			continue
		}

		if !reflect.DeepEqual(doc.fields[key], want) {
			return false
		}
	}
	return true
}

// normalize gives selector values the types decoded documents have.
func normalize(s Selector) Selector {
	if len(s) == 0 {
		return nil
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return s
	}

	out := Selector{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return s
	}
	return out
}

// Cursor is a pending query. Results passed to a scope are fetched by
// Materialize.
type Cursor struct {
	coll     *Collection
	selector Selector
}

// Fetch runs the query. Reactive: a computation fetching a cursor reruns when
// the collection changes.
func (c *Cursor) Fetch(ctx context.Context) ([]*Document, error) {
	c.coll.dep.Depend()
	return c.coll.fetch(ctx, c.selector)
}

// Count returns the number of matching documents. Reactive.
func (c *Cursor) Count(ctx context.Context) (int, error) {
	docs, err := c.Fetch(ctx)
	return len(docs), err
}

// Materialize fetches the cursor as Documents.
func (c *Cursor) Materialize() (any, error) {
	docs, err := c.Fetch(context.Background())
	if err != nil {
		return nil, err
	}
	return Documents(docs), nil
}
