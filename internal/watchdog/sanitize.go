package watchdog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/arcade/internal/shared/paths"
)

// shellMeta is rejected in strict mode. Arguments are never passed to a
// shell, but games are known to forward them to one.
const shellMeta = ";|&`<>"

// SanitizeArgs expands $VAR and ~ in args using lookup only, and rejects
// control characters. Strict mode also rejects shell metacharacters and
// command substitution.
func SanitizeArgs(args []string, lookup paths.Lookup, strict bool) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if strict && strings.Contains(arg, "$(") {
			return nil, fmt.Errorf("%w: args[%d] contains command substitution", ErrUnsafeArgument, i)
		}

		expanded := paths.Expand(arg, lookup)
		if err := checkControl(expanded); err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		if strict {
			if idx := strings.IndexAny(expanded, shellMeta); idx >= 0 {
				return nil, fmt.Errorf("%w: args[%d] contains %q", ErrUnsafeArgument, i, expanded[idx])
			}
		}
		out = append(out, expanded)
	}
	return out, nil
}

func checkControl(s string) error {
	for _, r := range s {
		if r == 0 || (unicode.IsControl(r) && r != '\t') {
			return fmt.Errorf("%w: control character %U", ErrUnsafeArgument, r)
		}
	}
	return nil
}

// Quote single-quotes a value for display.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// CommandLine renders a launch for logs.
func CommandLine(path string, args []string) string {
	var b strings.Builder
	b.WriteString(Quote(path))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}
	return b.String()
}
