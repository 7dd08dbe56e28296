package payload

import (
	"regexp"

	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
)

var placeholderPattern = regexp.MustCompile(`\$(?:(\$)|([A-Za-z_][A-Za-z0-9_]*)|\{([A-Za-z_][A-Za-z0-9_]*)\})`)

// Template substitutes $NAME and ${NAME} placeholders in text from vars.
// "$$" escapes a literal dollar sign. In strict mode (permissive=false) any
// unresolved placeholder fails with MissingVariableError; in permissive mode
// unresolved placeholders are left verbatim.
func Template(text string, vars map[string]string, permissive bool) (string, error) {
	var missing []string
	seen := map[string]bool{}

	result := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if groups[1] == "$" {
			return "$"
		}

		name := groups[2]
		if name == "" {
			name = groups[3]
		}

		if value, ok := vars[name]; ok {
			return value
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 && !permissive {
		return "", &errors.MissingVariableError{Names: missing}
	}
	return result, nil
}

// MergeVars overlays later maps onto earlier ones, later values winning.
func MergeVars(maps ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
