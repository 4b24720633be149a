package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgCheckViolation = "23514"

// constraintCodes maps schema CHECK constraints that guard a loyalty or
// promotion limit to the code the service layer raises for the same rule.
// They fire only when two writers race past the service check.
var constraintCodes = map[string]struct {
	code    Code
	message string
}{
	"chk_qr_codes_total_uses":    {CodeQRCodeTotalLimitReached, "qr code has reached its total redemption limit"},
	"chk_promotions_usage_limit": {CodeInvalidPromoCode, "promotion usage limit reached"},
}

// ErrorDump is a log-friendly flattening of an error chain.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	PGCode       string
	PGConstraint string
	PGTable      string
	PGDetail     string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PGCode, d.PGConstraint, d.PGTable, d.PGDetail = postgresFields(err)
	return d
}

func postgresFields(err error) (code, constraint, table, detail string) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail
	}
	return "", "", "", ""
}

// FromConstraint turns a CHECK violation on a known limit constraint into
// the matching typed error. It returns nil for anything else.
func FromConstraint(err error) *Error {
	code, constraint, _, _ := postgresFields(err)
	if code != pgCheckViolation {
		return nil
	}
	mapped, ok := constraintCodes[constraint]
	if !ok {
		return nil
	}
	return Wrap(mapped.code, err, mapped.message)
}

// Fields returns the populated dump entries keyed for structured logging.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_chain": d.Chain,
	}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	for key, value := range map[string]string{
		"pg_code":       d.PGCode,
		"pg_constraint": d.PGConstraint,
		"pg_table":      d.PGTable,
		"pg_detail":     d.PGDetail,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
