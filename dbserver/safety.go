package dbserver

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var dangerousKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER",
	"CREATE", "TRUNCATE", "REPLACE", "PRAGMA",
	"ATTACH", "DETACH", "VACUUM",
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*(DROP|DELETE|INSERT|UPDATE)`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*.*\*/`),
	regexp.MustCompile(`UNION.*SELECT`),
}

// ValidateSQL rejects everything but a plain SELECT statement. The
// keyword and pattern denylist catches piggybacked statements, comments
// and UNION-based injection.
func ValidateSQL(sql string) error {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	if !strings.HasPrefix(upper, "SELECT") {
		return errors.New("unsafe SQL statement: only SELECT queries are allowed")
	}

	for _, keyword := range dangerousKeywords {
		if strings.Contains(upper, keyword) {
			return errors.Newf("unsafe SQL statement: %s is not allowed", keyword)
		}
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(upper) {
			return errors.New("unsafe SQL statement: only SELECT queries are allowed")
		}
	}

	return nil
}
