package apierr

import "strings"

// hintRule maps an error-message substring to an actionable suggestion.
type hintRule struct {
	substring  string
	suggestion string
}

// Ordered; first match wins.
var hintRules = []hintRule{
	{"no such file", "check that the specification file path is correct"},
	{"file not found", "check that the specification file path is correct"},
	{"not found", "verify the name exists in the loaded specification"},
	{"permission denied", "check file and directory permissions"},
	{"yaml", "validate the YAML syntax of the specification"},
	{"json", "validate the JSON syntax of the specification"},
	{"parse", "validate the specification syntax with a linter"},
	{"too large", "try a smaller specification file or raise the size limit"},
	{"memory", "try a smaller specification file"},
	{"locked", "another process may hold the database; retry shortly"},
	{"timeout", "retry the request or raise the configured timeout"},
}

// hintFor returns a troubleshooting suggestion for the message, or "".
func hintFor(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range hintRules {
		if strings.Contains(lower, rule.substring) {
			return rule.suggestion
		}
	}
	return ""
}
