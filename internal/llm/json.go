package llm

import "strings"

// ExtractJSONObject returns the text between the first '{' and the last '}'.
// Models sometimes wrap JSON in prose or code fences.
func ExtractJSONObject(raw string) (string, bool) {
	i := strings.Index(raw, "{")
	j := strings.LastIndex(raw, "}")
	if i < 0 || j <= i {
		return "", false
	}
	return raw[i : j+1], true
}
