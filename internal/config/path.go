package config

import (
	"fmt"
	"reflect"
	"strings"
)

// Set mutates cfg at the given dotted path (e.g. "strummer.strumming.upperNoteSpread")
// to value, tolerating camelCase and snake_case at each segment.
// value is whatever the JSON decoder produced (float64, string, bool, map, slice, nil).
func Set(cfg *Config, path string, value any) error {
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = normalizeKey(s)
	}

	v := reflect.ValueOf(cfg).Elem()
	for i, seg := range segments {
		field, err := findFieldByJSONTag(v, seg)
		if err != nil {
			return fmt.Errorf("config: %w (path %q)", err, path)
		}

		last := i == len(segments)-1
		if last {
			return assignValue(field, value)
		}

		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			field = field.Elem()
		}
		v = field
	}
	return nil
}

// Get reads the value at the given dotted path.
func Get(cfg Config, path string) (any, error) {
	segments := strings.Split(path, ".")
	for i, s := range segments {
		segments[i] = normalizeKey(s)
	}

	v := reflect.ValueOf(cfg)
	for _, seg := range segments {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		field, err := findFieldByJSONTag(v, seg)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		v = field
	}
	return v.Interface(), nil
}

func findFieldByJSONTag(v reflect.Value, key string) (reflect.Value, error) {
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("cannot descend into non-struct field for key %q", key)
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = t.Field(i).Name
		}
		if strings.EqualFold(name, key) {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown config field %q", key)
}

func assignValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return fmt.Errorf("config field is not settable")
	}

	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	rv := reflect.ValueOf(value)

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f, ok := value.(float64); ok {
			field.SetInt(int64(f))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := value.(float64); ok {
			field.SetFloat(f)
			return nil
		}
	case reflect.Slice:
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal(encoded, ptr.Interface()); err != nil {
			return err
		}
		field.Set(ptr.Elem())
		return nil
	case reflect.Struct, reflect.Map:
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal(encoded, ptr.Interface()); err != nil {
			return err
		}
		field.Set(ptr.Elem())
		return nil
	}

	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}

	return fmt.Errorf("cannot assign value of type %T to field of type %s", value, field.Type())
}
