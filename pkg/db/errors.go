package db

import "strings"

// IsUniqueViolation reports whether the provided error is a SQLite UNIQUE
// constraint failure. When column is provided, the helper also requires the
// column name to appear in the message.
func IsUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if column != "" {
		return strings.Contains(msg, column)
	}
	return true
}
