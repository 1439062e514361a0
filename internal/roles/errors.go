package roles

import (
	"errors"
	"fmt"
)

// UnknownRoleError is returned when a caller names a role outside the roster.
type UnknownRoleError struct {
	Name string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.Name)
}

// IsUnknownRole reports whether err (or anything it wraps) is an UnknownRoleError.
func IsUnknownRole(err error) bool {
	var e *UnknownRoleError
	return errors.As(err, &e)
}
