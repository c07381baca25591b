package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound converts sql.ErrNoRows to a nil result without error, so a
// missing row reads as "absent" rather than as a failure.
//
// Usage:
//
//	var s model.Session
//	err := tx.GetContext(ctx, &s, query, args...)
//	return HandleNotFound(&s, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
