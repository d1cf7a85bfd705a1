package config

import "strings"

// ResolvePlaceholder expands a value written as ${VAR_NAME}. An unset
// variable yields the empty string, which stages later reject as a missing
// credential. Any other value is returned unchanged.
func ResolvePlaceholder(value string, lookup LookupFunc) string {
	name, ok := placeholderName(value)
	if !ok {
		return value
	}
	if lookup == nil {
		return ""
	}
	v, _ := lookup(name)
	return v
}

func placeholderName(value string) (string, bool) {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return "", false
	}
	name := strings.TrimSpace(value[2 : len(value)-1])
	return name, name != ""
}
