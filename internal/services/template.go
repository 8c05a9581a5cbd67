package services

import (
	"fmt"
	"regexp"
	"strings"
)

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// ProcessTemplate substitutes {{dotted.path}} placeholders by sequential
// key lookup into the nested data map. A path that cannot be fully
// resolved is left verbatim, so partially-configured templates stay
// visibly broken instead of silently rendering empty. A resolved nil
// leaf renders as the empty string.
func ProcessTemplate(template string, data map[string]interface{}) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		path := templatePlaceholder.FindStringSubmatch(match)[1]
		value, ok := resolvePath(data, strings.Split(path, "."))
		if !ok {
			return match
		}
		return stringify(value)
	})
}

func resolvePath(data map[string]interface{}, segments []string) (interface{}, bool) {
	var current interface{} = data
	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[segment]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
