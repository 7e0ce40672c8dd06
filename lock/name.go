package lock

import (
	"strings"
)

// Sanitize turns a table name into a name that is safe to use as a
// lock key. Characters outside [A-Za-z0-9_.-] become '_' and a
// leading '.' or '-' is prefixed with a letter.
func Sanitize(table string) string {
	var b strings.Builder

	if strings.HasPrefix(table, ".") || strings.HasPrefix(table, "-") {
		b.WriteByte('t')
	}

	for _, r := range table {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}
