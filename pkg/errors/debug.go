package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/multierr"
)

// PGDetails is the part of a Postgres error worth logging.
type PGDetails struct {
	Code       string `json:"pg_code"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// Diagnosis flattens an error for server-side logs.
type Diagnosis struct {
	Message string     `json:"message"`
	Code    Code       `json:"code,omitempty"`
	Chain   []string   `json:"chain,omitempty"`
	PG      *PGDetails `json:"pg,omitempty"`
}

// Diagnose walks err, following both single and joined wraps, and pulls out
// any driver error found along the way.
func Diagnose(err error) Diagnosis {
	if err == nil {
		return Diagnosis{}
	}
	d := Diagnosis{Message: err.Error(), PG: Postgres(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	walk(err, 0, func(e error, depth int) {
		d.Chain = append(d.Chain, fmt.Sprintf("%*s%T: %v", depth*2, "", e, e))
	})
	return d
}

// Fields renders the diagnosis as logger fields.
func (d Diagnosis) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_detail"] = d.PG.Detail
	}
	return fields
}

// Postgres returns the SQLSTATE details of the first pgx or lib/pq error in
// err's chain, or nil.
func Postgres(err error) *PGDetails {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

const maxChainDepth = 16

func walk(err error, depth int, visit func(error, int)) {
	if err == nil || depth >= maxChainDepth {
		return
	}
	visit(err, depth)
	if joined := multierr.Errors(err); len(joined) > 1 {
		for _, inner := range joined {
			walk(inner, depth+1, visit)
		}
		return
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range multi.Unwrap() {
			walk(inner, depth+1, visit)
		}
		return
	}
	walk(errors.Unwrap(err), depth, visit)
}
