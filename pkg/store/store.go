// Package store defines the keyed record store contract shared by every
// component: a single table addressed by (partition key, sort key) with up to
// three secondary indexes, conditional single-record writes, and all-or-nothing
// grouped writes. There are no joins; every lookup pattern is an index.
package store

import (
	"context"
	"net/http"
	"strings"

	"github.com/userplane/userplane/pkg/errx"
)

// Secondary index names. The index key attributes follow the index name
// (GSI1 -> GSI1PK/GSI1SK and so on).
const (
	// IndexEmail maps EMAIL#<email> -> USER#<user>.
	IndexEmail = "GSI1"
	// IndexSubject maps IDENT#<providerSubject> -> owning partition key.
	IndexSubject = "GSI2"
	// IndexTenant maps TENANT#<tenant> -> USER#<user> (tenant roster).
	IndexTenant = "GSI3"
)

// Record is a single item in the shared table. Key fields are promoted to
// struct fields; everything else rides in Attributes.
type Record struct {
	PK string
	SK string

	GSI1PK string
	GSI1SK string
	GSI2PK string
	GSI2SK string
	GSI3PK string
	GSI3SK string

	// EntityType discriminates record kinds within the table.
	EntityType string

	Attributes map[string]interface{}
}

// Attr returns a string attribute, or "" when absent or not a string.
func (r Record) Attr(key string) string {
	v, ok := r.Attributes[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Condition is the uniqueness predicate attached to a write.
//
// The backing stores evaluate conditions against the item addressed by the
// record's full primary key, so both "partition key absent" and "sort key
// absent" reject the write exactly when an item with the same (PK, SK)
// already exists. Both names are kept so call sites read like the access
// pattern they guard.
type Condition int

const (
	// ConditionNone writes unconditionally.
	ConditionNone Condition = iota
	// ConditionPartitionKeyAbsent rejects the write when the record's
	// primary key is already present.
	ConditionPartitionKeyAbsent
	// ConditionSortKeyAbsent rejects the write when the record's primary
	// key is already present.
	ConditionSortKeyAbsent
)

// TransactPut is one conditional write inside a grouped transaction.
type TransactPut struct {
	Record    Record
	Condition Condition
}

// RecordStore is the port every backing store implements.
//
// GetByKey returns (nil, nil) when no record exists; absence is not an error.
// Query and QueryIndex return finite result sets ordered by sort key
// ascending.
type RecordStore interface {
	// PutIfAbsent writes the record only when the condition holds. A
	// predicate failure surfaces as CodeAlreadyExists, a normal outcome
	// that callers must expect on retried requests.
	PutIfAbsent(ctx context.Context, rec Record, cond Condition) error

	// GetByKey reads one record by its full primary key.
	GetByKey(ctx context.Context, pk, sk string) (*Record, error)

	// Query reads records sharing a partition key, optionally narrowed by
	// a sort-key prefix.
	Query(ctx context.Context, pk, skPrefix string) ([]Record, error)

	// QueryIndex reads records from a secondary index by index partition
	// key, optionally narrowed by an index sort-key prefix.
	QueryIndex(ctx context.Context, index, pk, skPrefix string) ([]Record, error)

	// TransactWrite submits the puts as one atomic unit. When any
	// condition fails the whole batch is rejected and an *AbortedError
	// describes every cancellation cause.
	TransactWrite(ctx context.Context, puts []TransactPut) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("STORE")

var (
	CodeAlreadyExists = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "Record already exists")
	CodeUnavailable   = ErrRegistry.Register("UNAVAILABLE", errx.TypeExternal, http.StatusBadGateway, "Record store unavailable")
	CodeBadRecord     = ErrRegistry.Register("BAD_RECORD", errx.TypeInternal, http.StatusInternalServerError, "Record cannot be encoded or decoded")
)

// ErrAlreadyExists builds the predicate-failure error.
func ErrAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeAlreadyExists)
}

// ErrUnavailable wraps a transient backing-store failure.
func ErrUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeUnavailable, cause)
}

// IsAlreadyExists reports whether err is a predicate failure.
func IsAlreadyExists(err error) bool {
	return errx.IsCode(err, CodeAlreadyExists)
}

// ============================================================================
// Aborted transactions
// ============================================================================

// AbortReason describes why one item of a grouped write was cancelled.
type AbortReason struct {
	// Index is the position of the item in the submitted batch.
	Index int
	// Predicate is true when the cancellation was a conditional-check
	// failure, i.e. the record already existed.
	Predicate bool
	Code      string
	Message   string
}

// AbortedError is returned by TransactWrite when the batch was rejected.
type AbortedError struct {
	Reasons []AbortReason
}

func (e *AbortedError) Error() string {
	var b strings.Builder
	b.WriteString("transaction aborted:")
	for _, r := range e.Reasons {
		b.WriteString(" [")
		b.WriteString(r.Code)
		b.WriteString("]")
	}
	return b.String()
}

// PredicateOnly reports whether every cancellation cause was a predicate
// failure. That is the expected steady state for redelivered events and is
// treated as success by callers; anything else must propagate.
func (e *AbortedError) PredicateOnly() bool {
	if len(e.Reasons) == 0 {
		return false
	}
	any := false
	for _, r := range e.Reasons {
		if r.Code == "" || r.Code == reasonNone {
			continue
		}
		if !r.Predicate {
			return false
		}
		any = true
	}
	return any
}

// reasonNone is the cancellation code reported for items that were fine.
const reasonNone = "None"

// AsAborted extracts an *AbortedError from err, if present.
func AsAborted(err error) (*AbortedError, bool) {
	var aborted *AbortedError
	if errx.As(err, &aborted) {
		return aborted, true
	}
	return nil, false
}
