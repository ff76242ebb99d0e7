package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// GetValue retrieves a config value by dotted path (e.g. "sync.webhook_url").
func (c *Config) GetValue(path string) (string, error) {
	v, err := lookupField(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// SetValue parses value according to the field at path and stores it.
func (c *Config) SetValue(path, value string) error {
	v, err := lookupField(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("%s is a section, set one of its keys", path)
	}
	return setFieldValue(v, value)
}

// lookupField walks v along a dotted path of yaml keys.
func lookupField(v reflect.Value, path string) (reflect.Value, error) {
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
		}
		field, ok := fieldByYAMLKey(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
		}
		v = field
	}
	return v, nil
}

func fieldByYAMLKey(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if yamlKey(t.Field(i)) == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func yamlKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

func setFieldValue(field reflect.Value, value string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.Kind() == reflect.Int:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		field.SetInt(int64(i))
	case field.Kind() == reflect.Bool:
		field.SetBool(parseBool(value))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

func formatValue(v reflect.Value) string {
	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).String()
	case v.Kind() == reflect.String:
		return v.String()
	case v.Kind() == reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case v.Kind() == reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		return fmt.Sprintf("%+v", v.Interface())
	}
}

// AllConfigPaths returns every settable dotted path, sorted.
func AllConfigPaths() []string {
	var paths []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			p := yamlKey(f)
			if prefix != "" {
				p = prefix + "." + p
			}
			if f.Type.Kind() == reflect.Struct && f.Type != durationType {
				walk(f.Type, p)
				continue
			}
			paths = append(paths, p)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(paths)
	return paths
}
