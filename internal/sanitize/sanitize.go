// Package sanitize validates and neutralizes externally-supplied
// identifiers, locations, and destinations before they reach the
// filesystem namespace. Every caller-provided string flows through here
// before storage or sink I/O.
package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zjrosen/depotgate/internal/domain"
)

const (
	maxComponentLen = 200
	maxTaskIDLen    = 256
)

// Runs of path-significant characters collapse to a single underscore.
var componentRuns = regexp.MustCompile(`[/\\.]+`)

// Component neutralizes a free-form string for use as a single path
// segment: runs of '/', '\' and '.' become '_', the result is truncated
// to 200 characters, and an empty result becomes "invalid".
func Component(s string) string {
	out := componentRuns.ReplaceAllString(s, "_")
	if runes := []rune(out); len(runes) > maxComponentLen {
		out = string(runes[:maxComponentLen])
	}
	if out == "" {
		return "invalid"
	}
	return out
}

// ValidateTaskID checks a root task id: ASCII alphanumerics, '_' and
// '-', at most 256 characters, non-empty.
func ValidateTaskID(s string) error {
	if s == "" {
		return domain.E(domain.KindInvalidIdentifier, "root_task_id is empty")
	}
	if len(s) > maxTaskIDLen {
		return domain.E(domain.KindInvalidIdentifier, "root_task_id exceeds %d characters", maxTaskIDLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return domain.E(domain.KindInvalidIdentifier, "root_task_id contains invalid character %q", string(c))
		}
	}
	return nil
}

// ResolveUnderBase joins rel onto base and verifies the resolved path is
// a descendant of the resolved base. Escapes fail with PathViolation.
func ResolveUnderBase(base, rel string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", domain.WrapE(domain.KindPathViolation, err, "resolving base %q", base)
	}
	resolved := filepath.Clean(filepath.Join(absBase, rel))
	back, err := filepath.Rel(absBase, resolved)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", domain.E(domain.KindPathViolation, "path %q escapes base", rel)
	}
	return resolved, nil
}

// ParseLocation splits a URI into scheme and body. A missing scheme
// fails with InvalidLocation; scheme validity is the caller's concern.
func ParseLocation(uri string) (scheme, body string, err error) {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "", "", domain.E(domain.KindInvalidLocation, "location %q has no scheme", uri)
	}
	return uri[:i], uri[i+3:], nil
}

// NeutralizeRel strips '.' and '..' segments and empty segments from a
// relative destination, so traversal attempts degrade to a path inside
// the base rather than an escape.
func NeutralizeRel(rel string) string {
	segments := strings.FieldsFunc(rel, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			continue
		}
		kept = append(kept, seg)
	}
	return strings.Join(kept, string(filepath.Separator))
}
