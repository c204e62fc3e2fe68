package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 8

// Diagnostics is the log-side view of a failure. It never reaches clients.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	SQL     *SQLState
}

// SQLState holds the Postgres diagnostics of a failed statement.
type SQLState struct {
	Code       string
	Class      string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Diagnose unwinds err for logging. Both pgx and lib/pq driver errors are
// recognised since gorm and goose use different drivers.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error(), Code: CodeInternal, SQL: sqlState(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil && len(d.Chain) < maxChainDepth; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields flattens d into log fields, omitting SQL keys for non-database errors.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.SQL != nil {
		fields["pg_code"] = d.SQL.Code
		fields["pg_class"] = d.SQL.Class
		fields["pg_constraint"] = d.SQL.Constraint
		fields["pg_table"] = d.SQL.Table
		fields["pg_column"] = d.SQL.Column
		fields["pg_detail"] = d.SQL.Detail
		fields["pg_message"] = d.SQL.Message
	}
	return fields
}

func sqlState(err error) *SQLState {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &SQLState{
			Code:       pgxErr.Code,
			Class:      sqlClass(pgxErr.Code),
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &SQLState{
			Code:       string(pqErr.Code),
			Class:      sqlClass(string(pqErr.Code)),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// sqlClass names the SQLSTATE classes the ledger actually runs into.
func sqlClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	switch code[:2] {
	case "08":
		return "connection_exception"
	case "22":
		return "data_exception"
	case "23":
		return "integrity_constraint_violation"
	case "40":
		return "transaction_rollback"
	case "42":
		return "syntax_or_access_rule"
	case "53":
		return "insufficient_resources"
	case "57":
		return "operator_intervention"
	default:
		return "other"
	}
}
