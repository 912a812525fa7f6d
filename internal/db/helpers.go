package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsMissingSchemaErr reports whether the error means the report schema
// has not been migrated yet. Callers treat this like an absent
// database: history is unavailable, intake keeps working.
func IsMissingSchemaErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 = undefined_table
		// 42703 = undefined_column
		return pgErr.Code == "42P01" || pgErr.Code == "42703"
	}
	return false
}
