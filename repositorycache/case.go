package repositorycache

import (
	"reflect"
	"strings"
	"unicode"
)

// entityTypeOf names the entity type of T: the snake_case name of the
// underlying struct, so *User and User both map to "user".
func entityTypeOf[T any]() string {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		name = t.String()
	}
	return toSnake(name)
}

// newModel returns a pointer to a fresh T suitable for bun's Model.
func newModel[T any]() any {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Interface()
}

// toSnake lowercases s and inserts underscores at word boundaries. Anything
// that is not a letter or digit collapses into a single underscore, so
// reflected names like "pkg.UserV2" become "pkg_user_v2".
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pending := false
	sep := func() {
		pending = b.Len() > 0
	}
	write := func(r rune) {
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			write(unicode.ToLower(r))
		case unicode.IsLower(r), unicode.IsDigit(r):
			write(r)
		default:
			sep()
		}
	}
	return b.String()
}
