package relay_db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuild(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		query *Query
		sql   string
		args  []any
	}{
		{
			name:  "all",
			query: Find("users"),
			sql:   "SELECT id, body, created_at, updated_at FROM users ORDER BY created_at ASC, id ASC",
			args:  []any{},
		},
		{
			name:  "body fields",
			query: Find("users").WhereEq("email", "a@b.co").WhereGt("age", 21),
			sql:   "SELECT id, body, created_at, updated_at FROM users WHERE (body->'email') = $1::jsonb AND (body->'age') > $2::jsonb ORDER BY created_at ASC, id ASC",
			args:  []any{`"a@b.co"`, `21`},
		},
		{
			name:  "system fields, sort and limit",
			query: Find("payment_methods").WhereEq("id", "x").WhereGte("created_at", since).SortDesc("last4").Limit(5),
			sql:   "SELECT id, body, created_at, updated_at FROM payment_methods WHERE id = $1 AND created_at >= $2 ORDER BY (body->'last4') DESC, created_at ASC, id ASC LIMIT 5",
			args:  []any{"x", since},
		},
		{
			name:  "booleans",
			query: Find("payment_methods").WhereNe("is_default", true).SortAsc("created_at"),
			sql:   "SELECT id, body, created_at, updated_at FROM payment_methods WHERE (body->'is_default') <> $1::jsonb ORDER BY created_at ASC, created_at ASC, id ASC",
			args:  []any{`true`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.query.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestQueryBuildOffset(t *testing.T) {
	sql, _, err := Find("files").WhereEq("owner_id", "u1").BuildOffset(2)
	require.NoError(t, err)
	assert.Contains(t, sql, "(body->'owner_id') = $3::jsonb")
}

func TestQueryRejectsBadNames(t *testing.T) {
	tests := []*Query{
		Find("users; DROP TABLE users"),
		Find("users").WhereEq("email'--", "x"),
		Find("users").SortAsc("a.b"),
		Find("users").WhereEq("", 1),
	}
	for _, q := range tests {
		_, _, err := q.Build()
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.ErrorIs(t, q.Err(), ErrInvalidName)
	}
}

func TestQueryAccessors(t *testing.T) {
	q := Find("users").WhereLt("age", 3).WhereLte("age", 4).SortAsc("name").Limit(2)
	assert.Equal(t, "users", q.Collection())
	assert.Equal(t, []QueryWhere{{"age", OpLt, 3}, {"age", OpLte, 4}}, q.Conditions())
	assert.Equal(t, []QuerySort{{Field: "name"}}, q.Sorting())
	assert.Equal(t, 2, q.LimitValue())
	assert.Equal(t, -1, Find("users").LimitValue())
}
