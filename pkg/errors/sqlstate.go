package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// DBFailure is the driver-independent part of a Postgres error.
type DBFailure struct {
	SQLState   string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// DBFailureOf extracts a DBFailure from either the pgx or the lib/pq driver.
func DBFailureOf(err error) (DBFailure, bool) {
	if pgErr, ok := asType[*pgconn.PgError](err); ok {
		return DBFailure{
			SQLState:   pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}, true
	}
	if pqErr, ok := asType[*pq.Error](err); ok {
		return DBFailure{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return DBFailure{}, false
}

func asType[T error](err error) (T, bool) {
	var target T
	ok := stdErrors.As(err, &target)
	return target, ok
}

// Classify returns err as a typed *Error. Untyped errors are mapped from
// their SQLSTATE class or context state; anything else is internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		return Wrap(CodeDependency, err, "request deadline exceeded")
	}
	failure, ok := DBFailureOf(err)
	if !ok {
		return Wrap(CodeInternal, err, "unexpected error")
	}
	switch state := failure.SQLState; {
	case state == "23505":
		return Wrap(CodeConflict, err, "record already exists")
	case state == "40001", state == "40P01", state == "55P03":
		// serialization failure, deadlock, lock timeout
		return Wrap(CodeDependency, err, "concurrent update; retry")
	case strings.HasPrefix(state, "08"), state == "57P01", state == "53300":
		return Wrap(CodeDependency, err, "database unavailable")
	default:
		return Wrap(CodeInternal, err, fmt.Sprintf("database error %s", state))
	}
}

// LogFields flattens err for structured logs: the code, the unwrap chain and
// any Postgres details.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields := map[string]any{
		"error":       err.Error(),
		"error_chain": chain,
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	if failure, ok := DBFailureOf(err); ok {
		fields["pg_code"] = failure.SQLState
		fields["pg_constraint"] = failure.Constraint
		fields["pg_table"] = failure.Table
		fields["pg_column"] = failure.Column
		fields["pg_detail"] = failure.Detail
		fields["pg_message"] = failure.Message
	}
	return fields
}
