package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
)

// StringArray maps a postgres text[] column. Elements are always quoted on
// write so role ids and tags containing commas survive the round trip.
type StringArray []string

func (a *StringArray) Scan(src any) error {
	if src == nil {
		*a = StringArray{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return a.parseFromString(v)
	case []byte:
		return a.parseFromString(string(v))
	default:
		return fmt.Errorf("StringArray: unsupported Scan type %T", src)
	}
}

func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(a))
	for _, item := range a {
		parts = append(parts, quoteElement(item))
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether value is a member.
func (a StringArray) Contains(value string) bool {
	return slices.Contains(a, value)
}

// Intersects reports whether the two sets share at least one element.
func (a StringArray) Intersects(other []string) bool {
	for _, item := range other {
		if a.Contains(item) {
			return true
		}
	}
	return false
}

// Normalize trims, drops empties and removes duplicates, keeping first-seen order.
func Normalize(values []string) StringArray {
	out := make(StringArray, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || out.Contains(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func quoteElement(value string) string {
	var builder strings.Builder
	builder.WriteByte('"')
	for _, r := range value {
		if r == '\\' || r == '"' {
			builder.WriteByte('\\')
		}
		builder.WriteRune(r)
	}
	builder.WriteByte('"')
	return builder.String()
}

func (a *StringArray) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		*a = StringArray{}
		return nil
	}
	if s[0] != '{' || s[len(s)-1] != '}' {
		return fmt.Errorf("StringArray: invalid literal %q", s)
	}
	content := s[1 : len(s)-1]

	out := StringArray{}
	var builder strings.Builder
	inQuotes, escape, quoted := false, false, false
	flush := func() {
		item := builder.String()
		if !quoted {
			item = strings.TrimSpace(item)
		}
		if quoted || !strings.EqualFold(item, "NULL") {
			out = append(out, item)
		}
		builder.Reset()
		quoted = false
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch {
		case escape:
			builder.WriteByte(ch)
			escape = false
		case ch == '\\':
			escape = true
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case ch == ',' && !inQuotes:
			flush()
		default:
			builder.WriteByte(ch)
		}
	}
	if inQuotes {
		return fmt.Errorf("StringArray: unterminated quote in %q", s)
	}
	flush()

	*a = out
	return nil
}
