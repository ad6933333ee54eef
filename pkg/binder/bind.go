package binder

import (
	"fmt"
	"reflect"
	"strings"
)

// bindStrings copies values into the string fields of the struct v points
// to. A field binds to the first value of the parameter named by its tag.
// Untagged fields and `tag:"-"` are left alone. Request parameters are
// opaque text, so any other field kind is a declaration error.
func bindStrings(v any, tag string, values map[string][]string, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a non-nil pointer to struct", bindErr)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		sf := rt.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
		if name == "" || name == "-" || !sf.IsExported() {
			continue
		}
		if sf.Type.Kind() != reflect.String {
			return fmt.Errorf("%w: field %s: unsupported type %s", bindErr, sf.Name, sf.Type)
		}
		if vals := values[name]; len(vals) > 0 {
			rv.Field(i).SetString(vals[0])
		}
	}
	return nil
}
