package relay_db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Record is a decoded document.
type Record[T any] struct {
	ID        string
	Value     T
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection is a typed view of one collection. Values are stored as their
// JSON encoding, so struct tags decide the field names queries use.
//
// Example:
//
//	type userDocument struct {
//	    Email string `json:"email"`
//	}
//	users := relay_db.NewCollection[userDocument](store, "users")
//	rec, err := users.FindOne(ctx, users.Find().WhereEq("email", "a@b.c"))
type Collection[T any] struct {
	store Store
	name  string
}

func NewCollection[T any](store Store, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Find starts a query on this collection.
func (c *Collection[T]) Find() *Query {
	return Find(c.name)
}

func (c *Collection[T]) encode(v T) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", c.name, err)
	}
	return body, nil
}

func (c *Collection[T]) decode(doc Document) (Record[T], error) {
	rec := Record[T]{ID: doc.ID, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}
	if err := json.Unmarshal(doc.Body, &rec.Value); err != nil {
		return Record[T]{}, fmt.Errorf("%s %s: decode: %w", c.name, doc.ID, err)
	}
	return rec, nil
}

// Insert stores v under id, or under a generated id when id is empty.
func (c *Collection[T]) Insert(ctx context.Context, id string, v T) (Record[T], error) {
	body, err := c.encode(v)
	if err != nil {
		return Record[T]{}, err
	}
	doc, err := c.store.Insert(ctx, c.name, Document{ID: id, Body: body})
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{ID: doc.ID, Value: v, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}, nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (Record[T], error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return Record[T]{}, err
	}
	return c.decode(doc)
}

// Replace overwrites the stored value of an existing document.
func (c *Collection[T]) Replace(ctx context.Context, id string, v T) (Record[T], error) {
	body, err := c.encode(v)
	if err != nil {
		return Record[T]{}, err
	}
	doc, err := c.store.Replace(ctx, c.name, Document{ID: id, Body: body})
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{ID: doc.ID, Value: v, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// FindOne returns the first match, or a not-found StoreError.
func (c *Collection[T]) FindOne(ctx context.Context, q *Query) (Record[T], error) {
	docs, err := c.store.Find(ctx, q.Limit(1))
	if err != nil {
		return Record[T]{}, err
	}
	if len(docs) == 0 {
		return Record[T]{}, NotFoundError(c.name)
	}
	return c.decode(docs[0])
}

func (c *Collection[T]) FindMany(ctx context.Context, q *Query) ([]Record[T], error) {
	docs, err := c.store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	results := make([]Record[T], 0, len(docs))
	for _, doc := range docs {
		rec, err := c.decode(doc)
		if err != nil {
			return results, err
		}
		results = append(results, rec)
	}
	return results, nil
}
