// Package render turns a recipient row into personalized message content.
package render

import (
	"regexp"
	"strings"

	"github.com/foxzi/campaignd/internal/recipients"
)

// variable pattern for template substitution: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Vars builds the substitution map for one recipient. Priority: recipient
// columns > global variables. Canonical fields are exposed under their
// canonical names and extra columns under their normalized header names.
func Vars(r recipients.Recipient, global map[string]string) map[string]string {
	vars := make(map[string]string, len(global)+len(r.Extra)+4)

	for k, v := range global {
		vars[k] = v
	}
	for k, v := range r.Extra {
		vars[k] = v
	}

	vars["Email"] = r.Email
	vars["Name"] = r.Name
	vars["MembershipID"] = r.MembershipID
	vars["Mobile"] = r.Mobile

	return vars
}

// Render substitutes {{variable}} patterns in template. Variable names are
// matched exactly first, then case-insensitively after normalization, so
// {{membership_id}} finds the MembershipID column. Unknown variables are
// left untouched.
func Render(template string, vars map[string]string) string {
	if template == "" {
		return template
	}

	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return value
		}
		norm := recipients.Normalize(name)
		for k, v := range vars {
			if recipients.Normalize(k) == norm {
				return v
			}
		}
		return match
	})
}
