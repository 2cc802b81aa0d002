// Package template expands {{var}} placeholders in output paths,
// e.g. "outputs/{{pipeline}}_{{date}}".
package template

import (
	"fmt"
	"strings"

	"github.com/aalvaropc/bathymesh/internal/domain"
)

// RenderString replaces {{VAR}} placeholders with vars values.
// It returns an error if a variable is missing or a placeholder is malformed.
func RenderString(input string, vars map[string]string) (string, error) {
	if input == "" {
		return "", nil
	}

	var out strings.Builder
	rest := input
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			return out.String(), nil
		}

		out.WriteString(rest[:start])
		rest = rest[start+2:]

		end := strings.Index(rest, "}}")
		if end == -1 {
			return "", renderErr(input, "unclosed template expression")
		}

		key := strings.TrimSpace(rest[:end])
		if key == "" {
			return "", renderErr(input, "empty template expression")
		}

		value, ok := vars[key]
		if !ok {
			return "", renderErr(input, fmt.Sprintf("unknown variable %q", key))
		}

		out.WriteString(value)
		rest = rest[end+2:]
	}
}

// HasPlaceholders reports whether s contains a {{ expression.
func HasPlaceholders(s string) bool {
	return strings.Contains(s, "{{")
}

func renderErr(input, msg string) error {
	return &domain.OpError{
		Op:   "template.render",
		Kind: domain.KindInvalidConfig,
		Err:  fmt.Errorf("%q: %s: %w", input, msg, domain.ErrInvalidConfig),
	}
}
