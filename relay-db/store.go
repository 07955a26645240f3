// Package relay_db is the document store behind the relay services. Documents
// are JSON bodies grouped into named collections and addressed by string ids;
// collections may declare unique fields, and queries filter and sort on body
// fields with a fluent builder.
//
// Two stores implement the same semantics:
//   - PostgresStore keeps one table per collection with a JSONB body column
//   - MemoryStore keeps everything in process and is used by tests
//
// Usage Example:
//
//	users := relay_db.NewCollection[User](store, "users")
//	active, err := users.FindMany(ctx, users.Find().
//	    WhereEq("active", true).
//	    SortDesc("created_at").
//	    Limit(10))
package relay_db

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jacksonzamorano/relay"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrNotFound is matched by errors.Is when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is matched by errors.Is when a write violates a unique field.
	ErrConflict = errors.New("document conflicts with an existing document")
	// ErrInvalidName is returned for collection or field names that are not
	// plain identifiers.
	ErrInvalidName = errors.New("invalid collection or field name")
)

// Document is a stored JSON body with its bookkeeping columns.
type Document struct {
	ID        string
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists documents. Every method honors ctx cancellation.
type Store interface {
	// EnsureCollection creates the collection if needed. Each unique entry
	// names one field, or several separated by commas for a composite key.
	EnsureCollection(ctx context.Context, collection string, unique ...string) error
	// Insert stores a new document, generating an id when doc.ID is empty.
	Insert(ctx context.Context, collection string, doc Document) (Document, error)
	// Replace overwrites the body of an existing document.
	Replace(ctx context.Context, collection string, doc Document) (Document, error)
	Get(ctx context.Context, collection string, id string) (Document, error)
	Delete(ctx context.Context, collection string, id string) error
	Find(ctx context.Context, q *Query) ([]Document, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validName(name string) bool {
	return len(name) <= 63 && identifier.MatchString(name)
}

// parseUnique splits "user_id,fingerprint" into its validated fields.
func parseUnique(index string) ([]string, error) {
	fields := strings.Split(index, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if !validName(fields[i]) {
			return nil, ErrInvalidName
		}
	}
	return fields, nil
}

// StoreError describes a failed store operation on a collection. It matches
// ErrNotFound or ErrConflict through errors.Is and keeps the driver error, if
// any, as a second cause.
type StoreError struct {
	collection string
	kind       error
	cause      error
}

func (e *StoreError) Error() string {
	friendlyName := strings.ReplaceAll(e.collection, "_", " ")
	friendlyName = cases.Title(language.English).String(friendlyName)
	switch e.kind {
	case ErrNotFound:
		return singular(friendlyName) + " not found"
	case ErrConflict:
		return singular(friendlyName) + " already exists"
	}
	if e.cause != nil {
		return friendlyName + ": " + e.cause.Error()
	}
	return friendlyName + ": unknown error"
}

func singular(name string) string {
	if strings.HasSuffix(name, "ies") {
		return name[:len(name)-3] + "y"
	}
	return strings.TrimSuffix(name, "s")
}

func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// Collection is the collection the operation ran against.
func (e *StoreError) Collection() string {
	return e.collection
}

// Violates reports whether the driver error carries the given Postgres code.
func (e *StoreError) Violates(code PostgresErrorCode) bool {
	var pgError *pgconn.PgError
	if errors.As(e.cause, &pgError) {
		return pgError.Code == string(code)
	}
	return false
}

// Failure converts the error into the request failure the client sees.
func (e *StoreError) Failure() *relay.Failure {
	switch {
	case errors.Is(e.kind, ErrNotFound):
		return relay.Wrap(relay.KindNotFound, e.Error(), e)
	case errors.Is(e.kind, ErrConflict):
		return relay.Wrap(relay.KindConflict, e.Error(), e)
	case errors.Is(e.cause, context.Canceled), errors.Is(e.cause, context.DeadlineExceeded):
		return relay.Wrap(relay.KindCanceled, "Request canceled", e.cause)
	}
	return relay.InternalFailure(e)
}

// NotFoundError reports a missing document in collection.
func NotFoundError(collection string) *StoreError {
	return &StoreError{collection: collection, kind: ErrNotFound}
}

// ConflictError reports a unique-field violation in collection.
func ConflictError(collection string, cause error) *StoreError {
	return &StoreError{collection: collection, kind: ErrConflict, cause: cause}
}

// PostgresError classifies a driver error: unique violations become conflicts,
// everything else is kept as the cause.
func PostgresError(collection string, err error) *StoreError {
	e := &StoreError{collection: collection, cause: err}
	if e.Violates(PostgresErrorCodeUniqueViolation) {
		e.kind = ErrConflict
	}
	return e
}

type PostgresErrorCode string

const (
	PostgresErrorCodeUniqueViolation     PostgresErrorCode = "23505"
	PostgresErrorCodeNotNullViolation    PostgresErrorCode = "23502"
	PostgresErrorCodeForeignKeyViolation PostgresErrorCode = "23503"
	PostgresErrorCodeCheckViolation      PostgresErrorCode = "23514"
	PostgresErrorCodeUndefinedTable      PostgresErrorCode = "42P01"
)
