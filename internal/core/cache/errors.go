package cache

import "strings"

// IsNotFound reports whether the error came from a missing key.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
