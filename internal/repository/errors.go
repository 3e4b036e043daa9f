package repository

import (
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate")
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
