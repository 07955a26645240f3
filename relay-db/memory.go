package relay_db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// MemoryStore is an in-process Store with the same semantics as
// PostgresStore. Filters are evaluated against the stored JSON with gjson.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	last        time.Time
}

type memoryCollection struct {
	docs   map[string]Document
	unique [][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]*memoryCollection{}}
}

// collection returns the named collection, creating it on first use so tests
// need not call EnsureCollection. Callers hold the write lock.
func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: map[string]Document{}}
		s.collections[name] = c
	}
	return c
}

// now returns strictly increasing timestamps so creation order is total.
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, collection string, unique ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	parsed := make([][]string, 0, len(unique))
	for _, index := range unique {
		fields, err := parseUnique(index)
		if err != nil {
			return fmt.Errorf("%w: unique %q", err, index)
		}
		parsed = append(parsed, fields)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	for _, fields := range parsed {
		if !hasIndex(c.unique, fields) {
			c.unique = append(c.unique, fields)
		}
	}
	return nil
}

func hasIndex(indexes [][]string, fields []string) bool {
	key := strings.Join(fields, ",")
	for _, idx := range indexes {
		if strings.Join(idx, ",") == key {
			return true
		}
	}
	return false
}

// uniqueKey mirrors body->>'field': missing or null fields never conflict.
func uniqueKey(body []byte, fields []string) (string, bool) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		r := gjson.GetBytes(body, f)
		if !present(r) {
			return "", false
		}
		parts[i] = r.String()
	}
	return strings.Join(parts, "\x00"), true
}

func (c *memoryCollection) conflicts(doc Document) bool {
	for _, fields := range c.unique {
		key, ok := uniqueKey(doc.Body, fields)
		if !ok {
			continue
		}
		for id, other := range c.docs {
			if id == doc.ID {
				continue
			}
			if otherKey, ok := uniqueKey(other.Body, fields); ok && otherKey == key {
				return true
			}
		}
	}
	return false
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, PostgresError(collection, err)
	}
	if !validName(collection) {
		return Document{}, fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	if !json.Valid(doc.Body) {
		return Document{}, PostgresError(collection, fmt.Errorf("body is not valid JSON"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := c.docs[doc.ID]; exists {
		return Document{}, ConflictError(collection, nil)
	}
	if c.conflicts(doc) {
		return Document{}, ConflictError(collection, nil)
	}
	now := s.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	doc.Body = append([]byte(nil), doc.Body...)
	c.docs[doc.ID] = doc
	return copyDocument(doc), nil
}

func (s *MemoryStore) Replace(ctx context.Context, collection string, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, PostgresError(collection, err)
	}
	if !json.Valid(doc.Body) {
		return Document{}, PostgresError(collection, fmt.Errorf("body is not valid JSON"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	existing, ok := c.docs[doc.ID]
	if !ok {
		return Document{}, NotFoundError(collection)
	}
	if c.conflicts(doc) {
		return Document{}, ConflictError(collection, nil)
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = s.now()
	doc.Body = append([]byte(nil), doc.Body...)
	c.docs[doc.ID] = doc
	return copyDocument(doc), nil
}

func (s *MemoryStore) Get(ctx context.Context, collection string, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, PostgresError(collection, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[collection]
	if !ok {
		return Document{}, NotFoundError(collection)
	}
	doc, ok := c.docs[id]
	if !ok {
		return Document{}, NotFoundError(collection)
	}
	return copyDocument(doc), nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, id string) error {
	if err := ctx.Err(); err != nil {
		return PostgresError(collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return NotFoundError(collection)
	}
	if _, ok := c.docs[id]; !ok {
		return NotFoundError(collection)
	}
	delete(c.docs, id)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, q *Query) ([]Document, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, PostgresError(q.collection, err)
	}
	conds := make([]memoryCondition, len(q.where))
	for i, w := range q.where {
		cond, err := newMemoryCondition(w)
		if err != nil {
			return nil, err
		}
		conds[i] = cond
	}

	s.mu.RLock()
	results := []Document{}
	if c, ok := s.collections[q.collection]; ok {
	Docs:
		for _, doc := range c.docs {
			for _, cond := range conds {
				if !cond.match(doc) {
					continue Docs
				}
			}
			results = append(results, copyDocument(doc))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		for _, order := range q.sort {
			c := compareField(results[i], results[j], order.Field)
			if c != 0 {
				if order.Descending {
					return c > 0
				}
				return c < 0
			}
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
	if q.limit > 0 && len(results) > q.limit {
		results = results[:q.limit]
	}
	return results, nil
}

func copyDocument(doc Document) Document {
	doc.Body = append([]byte(nil), doc.Body...)
	return doc
}

type memoryCondition struct {
	field string
	op    Operator
	value gjson.Result
	raw   any
}

func newMemoryCondition(w QueryWhere) (memoryCondition, error) {
	cond := memoryCondition{field: w.Field, op: w.Op, raw: w.Value}
	if !isSystemField(w.Field) {
		encoded, err := json.Marshal(w.Value)
		if err != nil {
			return cond, fmt.Errorf("field %s: %w", w.Field, err)
		}
		cond.value = gjson.ParseBytes(encoded)
	}
	return cond, nil
}

func (c memoryCondition) match(doc Document) bool {
	var cmp int
	var ok bool
	switch c.field {
	case FieldID:
		id, isString := c.raw.(string)
		if !isString {
			return false
		}
		cmp, ok = strings.Compare(doc.ID, id), true
	case FieldCreatedAt, FieldUpdatedAt:
		t, isTime := c.raw.(time.Time)
		if !isTime {
			return false
		}
		cmp, ok = compareTime(systemTime(doc, c.field), t), true
	default:
		cmp, ok = compareJSON(gjson.GetBytes(doc.Body, c.field), c.value)
	}
	if !ok {
		return false
	}
	switch c.op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

func systemTime(doc Document, field string) time.Time {
	if field == FieldUpdatedAt {
		return doc.UpdatedAt
	}
	return doc.CreatedAt
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareJSON compares two JSON values of the same type the way JSONB does.
// Missing fields and mismatched types are not comparable, like SQL NULL.
func compareJSON(a, b gjson.Result) (int, bool) {
	if !a.Exists() || !b.Exists() {
		return 0, false
	}
	if isBool(a) && isBool(b) {
		return boolRank(a) - boolRank(b), true
	}
	if a.Type != b.Type {
		return 0, false
	}
	switch a.Type {
	case gjson.String:
		return strings.Compare(a.Str, b.Str), true
	case gjson.Number:
		switch {
		case a.Num < b.Num:
			return -1, true
		case a.Num > b.Num:
			return 1, true
		}
		return 0, true
	case gjson.Null:
		return 0, true
	}
	return strings.Compare(a.Raw, b.Raw), true
}

func isBool(r gjson.Result) bool {
	return r.Type == gjson.True || r.Type == gjson.False
}

func boolRank(r gjson.Result) int {
	if r.Type == gjson.True {
		return 1
	}
	return 0
}

func compareField(a, b Document, field string) int {
	switch field {
	case FieldID:
		return strings.Compare(a.ID, b.ID)
	case FieldCreatedAt, FieldUpdatedAt:
		return compareTime(systemTime(a, field), systemTime(b, field))
	}
	ra, rb := gjson.GetBytes(a.Body, field), gjson.GetBytes(b.Body, field)
	if c, ok := compareJSON(ra, rb); ok {
		return c
	}
	// Postgres sorts NULLs last in ascending order.
	switch {
	case present(ra) && !present(rb):
		return -1
	case !present(ra) && present(rb):
		return 1
	}
	return 0
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}
