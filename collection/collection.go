package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/AnatoleLucet/sigbridge"
)

type Collection struct {
	db   *sql.DB
	name string
	dep  *sigbridge.Dependency
}

func (c *Collection) Name() string { return c.name }

// Insert stores a new document and returns its id. An "_id" field is used as
// the id when present.
func (c *Collection) Insert(ctx context.Context, fields map[string]any) (string, error) {
	id, _ := fields["_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	body := maps.Clone(fields)
	delete(body, "_id")

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)",
		c.name, id, string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", c.name, err)
	}

	c.dep.Changed()
	return id, nil
}

// Update merges fields into the document id.
func (c *Collection) Update(ctx context.Context, id string, fields map[string]any) error {
	doc, err := c.get(ctx, id)
	if err != nil {
		return err
	}

	maps.Copy(doc.fields, fields)
	delete(doc.fields, "_id")

	raw, err := json.Marshal(doc.fields)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		"UPDATE documents SET body = ? WHERE collection = ? AND id = ?",
		string(raw), c.name, id)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", c.name, id, err)
	}

	c.dep.Changed()
	return nil
}

func (c *Collection) Remove(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?", c.name, id)
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", c.name, id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
	}

	c.dep.Changed()
	return nil
}

// FindOne returns the document id. Reactive.
func (c *Collection) FindOne(ctx context.Context, id string) (*Document, error) {
	c.dep.Depend()
	return c.get(ctx, id)
}

// Find returns a cursor over the documents matching selector, in insertion
// order. Nothing is read until the cursor is fetched.
func (c *Collection) Find(selector Selector) *Cursor {
	return &Cursor{coll: c, selector: normalize(selector)}
}

// Count returns the number of documents. Reactive.
func (c *Collection) Count(ctx context.Context) (int, error) {
	c.dep.Depend()

	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?", c.name).Scan(&n)
	return n, err
}

func (c *Collection) get(ctx context.Context, id string) (*Document, error) {
	var body string
	err := c.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", c.name, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, c.name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", c.name, id, err)
	}

	return decode(id, body)
}

func (c *Collection) fetch(ctx context.Context, selector Selector) ([]*Document, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ? ORDER BY seq", c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.name, err)
		}

		doc, err := decode(id, body)
		if err != nil {
			return nil, err
		}

		if selector.matches(doc) {
			docs = append(docs, doc)
		}
	}

	return docs, rows.Err()
}

func decode(id, body string) (*Document, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}

	return &Document{id: id, fields: fields}, nil
}
