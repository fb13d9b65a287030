package config

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

const redactedValue = "***"

// Validate checks the configuration with the same rules the loader applies.
func (c *Config) Validate() error {
	return (&ViperLoader{}).Validate(c)
}

// String returns the full configuration as a formatted string
func (c *Config) String() string {
	var sb strings.Builder
	writeStruct(&sb, reflect.ValueOf(c).Elem(), reflect.Value{}, "")
	return sb.String()
}

// Redacted returns the configuration with secrets masked: every value that
// came from the secrets file, and passwords embedded in connection URLs.
// Pass ViperLoader.Secrets(); nil masks URL passwords only.
func (c *Config) Redacted(secrets *Config) string {
	var mask reflect.Value
	if secrets != nil {
		mask = reflect.ValueOf(secrets).Elem()
	}
	var sb strings.Builder
	writeStruct(&sb, reflect.ValueOf(c).Elem(), mask, "")
	return redactURLPasswords(sb.String(), c)
}

// writeStruct renders v as indented YAML-like text. Fields whose counterpart
// in mask is set are printed as ***. An invalid mask prints everything.
func writeStruct(sb *strings.Builder, v, mask reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		if !value.CanInterface() {
			continue
		}
		var maskValue reflect.Value
		if mask.IsValid() {
			maskValue = mask.Field(i)
		}

		name := field.Name
		if tag := field.Tag.Get("mapstructure"); tag != "" && tag != "-" {
			name = tag
		}

		switch value.Kind() {
		case reflect.Struct:
			fmt.Fprintf(sb, "%s%s:\n", prefix, name)
			writeStruct(sb, value, maskValue, prefix+"  ")
		case reflect.Slice:
			writeSlice(sb, name, value, maskValue, prefix)
		case reflect.Map:
			writeMap(sb, name, value, maskValue, prefix)
		default:
			var display any = value.Interface()
			if isSet(maskValue) {
				display = redactedValue
			}
			fmt.Fprintf(sb, "%s%s: %v\n", prefix, name, display)
		}
	}
}

func writeSlice(sb *strings.Builder, name string, value, mask reflect.Value, prefix string) {
	if value.Len() == 0 {
		fmt.Fprintf(sb, "%s%s: []\n", prefix, name)
		return
	}
	fmt.Fprintf(sb, "%s%s:\n", prefix, name)
	for j := 0; j < value.Len(); j++ {
		elem := value.Index(j)
		var elemMask reflect.Value
		if mask.IsValid() && j < mask.Len() {
			elemMask = mask.Index(j)
		}
		if elem.Kind() != reflect.Struct {
			var display any = elem.Interface()
			if isSet(elemMask) {
				display = redactedValue
			}
			fmt.Fprintf(sb, "%s  - %v\n", prefix, display)
			continue
		}
		var nested strings.Builder
		writeStruct(&nested, elem, elemMask, prefix+"    ")
		// The first field goes on the "- " line.
		fmt.Fprintf(sb, "%s  - %s", prefix, strings.TrimPrefix(nested.String(), prefix+"    "))
	}
}

func writeMap(sb *strings.Builder, name string, value, mask reflect.Value, prefix string) {
	if value.Len() == 0 {
		fmt.Fprintf(sb, "%s%s: {}\n", prefix, name)
		return
	}
	fmt.Fprintf(sb, "%s%s:\n", prefix, name)
	for _, key := range sortedKeys(value) {
		var display any = value.MapIndex(key).Interface()
		if mask.IsValid() && mask.Len() > 0 && mask.MapIndex(key).IsValid() {
			display = redactedValue
		}
		fmt.Fprintf(sb, "%s  %v: %v\n", prefix, key.Interface(), display)
	}
}

// redactURLPasswords masks the password of every connection URL in c.
func redactURLPasswords(out string, c *Config) string {
	for _, raw := range []string{c.Store.URL, c.Broker.URL, c.Sweep.LockURL} {
		u, err := url.Parse(raw)
		if err != nil || u.User == nil {
			continue
		}
		password, ok := u.User.Password()
		if !ok || password == "" {
			continue
		}
		masked := strings.Replace(raw, ":"+password+"@", ":"+redactedValue+"@", 1)
		out = strings.ReplaceAll(out, raw, masked)
	}
	return out
}

func isSet(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.String:
		return v.String() != ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0
	case reflect.Bool:
		return v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() > 0
	default:
		return false
	}
}

func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	return keys
}
