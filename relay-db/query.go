package relay_db

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a comparison a Where clause applies to a body field.
type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "<>"
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

// System fields live in their own columns rather than in the body.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// QueryWhere is one field comparison. Conditions are joined with AND.
type QueryWhere struct {
	Field string
	Op    Operator
	Value any
}

// QuerySort orders results by a field.
type QuerySort struct {
	Field      string
	Descending bool
}

// Query selects documents from one collection. It is built with a fluent API
// in the style of:
//
//	q := relay_db.Find("payment_methods").
//	    WhereEq("user_id", userID).
//	    SortDesc("created_at").
//	    Limit(20)
//
// Invalid field names do not panic; the first one is remembered and returned
// by Err and by the store when the query runs.
type Query struct {
	collection string
	where      []QueryWhere
	sort       []QuerySort
	limit      int
	err        error
}

// Find starts a query on collection.
func Find(collection string) *Query {
	q := &Query{collection: collection, limit: -1}
	if !validName(collection) {
		q.err = fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	return q
}

func (q *Query) Collection() string {
	return q.collection
}

// Err returns the first construction error, if any.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) Conditions() []QueryWhere {
	return q.where
}

func (q *Query) Sorting() []QuerySort {
	return q.sort
}

// LimitValue returns the row limit, or -1 for none.
func (q *Query) LimitValue() int {
	return q.limit
}

func (q *Query) checkField(field string) bool {
	if q.err != nil {
		return false
	}
	if !validName(field) {
		q.err = fmt.Errorf("%w: field %q", ErrInvalidName, field)
		return false
	}
	return true
}

// Where adds a comparison against a body field (or a system field).
func (q *Query) Where(field string, op Operator, value any) *Query {
	if q.checkField(field) {
		q.where = append(q.where, QueryWhere{Field: field, Op: op, Value: value})
	}
	return q
}

func (q *Query) WhereEq(field string, value any) *Query {
	return q.Where(field, OpEq, value)
}

func (q *Query) WhereNe(field string, value any) *Query {
	return q.Where(field, OpNe, value)
}

func (q *Query) WhereLt(field string, value any) *Query {
	return q.Where(field, OpLt, value)
}

func (q *Query) WhereLte(field string, value any) *Query {
	return q.Where(field, OpLte, value)
}

func (q *Query) WhereGt(field string, value any) *Query {
	return q.Where(field, OpGt, value)
}

func (q *Query) WhereGte(field string, value any) *Query {
	return q.Where(field, OpGte, value)
}

func (q *Query) SortAsc(field string) *Query {
	if q.checkField(field) {
		q.sort = append(q.sort, QuerySort{Field: field})
	}
	return q
}

func (q *Query) SortDesc(field string) *Query {
	if q.checkField(field) {
		q.sort = append(q.sort, QuerySort{Field: field, Descending: true})
	}
	return q
}

// Limit caps the number of results. Zero or less means no limit.
func (q *Query) Limit(num int) *Query {
	q.limit = num
	return q
}

func isSystemField(field string) bool {
	return field == FieldID || field == FieldCreatedAt || field == FieldUpdatedAt
}

func columnFor(field string) string {
	if isSystemField(field) {
		return field
	}
	return "(body->'" + field + "')"
}

// Build renders the query as SQL for PostgresStore with placeholders numbered
// from $1.
func (q *Query) Build() (string, []any, error) {
	return q.BuildOffset(0)
}

// BuildOffset renders the query with placeholders numbered after idx, so it
// can be embedded in a larger statement. Body fields are compared as JSONB,
// which keeps number, string and boolean comparisons typed.
func (q *Query) BuildOffset(idx int) (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	args := []any{}
	query := "SELECT id, body, created_at, updated_at FROM " + q.collection
	if len(q.where) > 0 {
		clauses := make([]string, len(q.where))
		for i, w := range q.where {
			if isSystemField(w.Field) {
				clauses[i] = w.Field + " " + string(w.Op) + " $"
				args = append(args, w.Value)
				continue
			}
			encoded, err := json.Marshal(w.Value)
			if err != nil {
				return "", nil, fmt.Errorf("field %s: %w", w.Field, err)
			}
			clauses[i] = columnFor(w.Field) + " " + string(w.Op) + " $::jsonb"
			args = append(args, string(encoded))
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if len(q.sort) > 0 {
		parts := make([]string, len(q.sort))
		for i, s := range q.sort {
			order := "ASC"
			if s.Descending {
				order = "DESC"
			}
			parts[i] = columnFor(s.Field) + " " + order
		}
		query += " ORDER BY " + strings.Join(parts, ", ") + ", created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at ASC, id ASC"
	}
	if q.limit > 0 {
		query += fmt.Sprintf(" LIMIT %v", q.limit)
	}
	return numberPlaceholders(query, idx), args, nil
}

func numberPlaceholders(query string, idx int) string {
	var b strings.Builder
	argCt := 1 + idx
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			fmt.Fprintf(&b, "$%v", argCt)
			argCt++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
