package generator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Target parameter types.
const (
	TypeString    = "string"
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeFile      = "file"
	TypeDirectory = "directory"
	TypeArray     = "array"
	TypeObject    = "object"
)

var exactTypes = map[string]string{
	"string":  TypeString,
	"int":     TypeInteger,
	"long":    TypeInteger,
	"float":   TypeFloat,
	"double":  TypeFloat,
	"boolean": TypeBoolean,
	"record":  TypeObject,
	"object":  TypeObject,
	"enum":    TypeString,
}

// MapType maps a canonical IR type to the target vocabulary. Matching is
// case-insensitive with precedence array, file, directory, exact lookup,
// and string as the default.
func MapType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	switch {
	case strings.Contains(lower, "array") || strings.HasSuffix(strings.TrimSuffix(lower, "?"), "[]"):
		return TypeArray
	case strings.Contains(lower, "file"):
		return TypeFile
	case strings.Contains(lower, "directory"):
		return TypeDirectory
	}
	if mapped, ok := exactTypes[strings.TrimSuffix(lower, "?")]; ok {
		return mapped
	}
	return TypeString
}

// Ident turns an arbitrary id into a Groovy identifier.
func Ident(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

// uniqueIdents assigns a distinct identifier to every id. ids must be sorted
// so that suffixes are stable. reserved identifiers are never handed out.
func uniqueIdents(ids []string, transform func(string) string, reserved ...string) map[string]string {
	used := make(map[string]bool, len(ids)+len(reserved))
	for _, r := range reserved {
		used[r] = true
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		base := transform(id)
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[id] = name
	}
	return out
}

// Quote renders s as a single-quoted Groovy string.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return "'" + s + "'"
}

// Literal renders a default value as a Groovy literal. File and Directory
// objects become their location.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Literal(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		if class, _ := val["class"].(string); class == "File" || class == "Directory" {
			for _, key := range []string{"location", "path"} {
				if loc, ok := val[key].(string); ok {
					return Quote(loc)
				}
			}
		}
		if len(val) == 0 {
			return "[:]"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = Quote(k) + ": " + Literal(val[k])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return Quote(fmt.Sprintf("%v", val))
	}
}

// commentText flattens text for use inside // and /* */ comments.
func commentText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "*/", "* /")
}

// shellWord quotes a command argument when the shell would split it.
func shellWord(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"\\$`;&|<>(){}*?!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// scriptEscape escapes text placed inside a triple-double-quoted Groovy string.
func scriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `$`, `\$`)
	return strings.ReplaceAll(s, `"""`, `\"\"\"`)
}
