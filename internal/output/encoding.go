// Package output produces deterministic JSON for all tkb reports.
//
// Re-running a command over an unchanged store must yield a byte-identical
// report, so every report passes through DeterministicEncode: sorted keys,
// rounded floats, nil and empty fields omitted.
package output

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// DeterministicEncode produces byte-identical JSON output:
// stable key ordering, floats rounded to 6 decimal places, nil fields omitted.
func DeterministicEncode(v interface{}) ([]byte, error) {
	normalized := normalizeValue(v)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(normalized); err != nil {
		return nil, err
	}

	// Encode appends a newline; strip it so callers control framing.
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result, nil
}

// DeterministicEncodeIndented produces indented byte-identical JSON output
func DeterministicEncodeIndented(v interface{}, indent string) ([]byte, error) {
	normalized := normalizeValue(v)
	return json.MarshalIndent(normalized, "", indent)
}

// normalizeValue recursively normalizes a value for deterministic encoding.
// json.Marshal sorts map keys, so structs and maps are flattened into
// map[string]interface{} honoring json tags.
func normalizeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)

	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		return normalizeMap(val)
	case reflect.Slice, reflect.Array:
		return normalizeSlice(val)
	case reflect.Struct:
		return normalizeStruct(val)
	case reflect.Float32, reflect.Float64:
		return RoundFloat(val.Float())
	case reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return normalizeValue(val.Interface())
	default:
		return val.Interface()
	}
}

func normalizeMap(val reflect.Value) interface{} {
	if val.IsNil() {
		return nil
	}

	result := make(map[string]interface{})
	iter := val.MapRange()
	for iter.Next() {
		normalized := normalizeValue(iter.Value().Interface())
		if normalized != nil {
			result[keyString(iter.Key())] = normalized
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func keyString(key reflect.Value) string {
	if key.Kind() == reflect.String {
		return key.String()
	}
	data, _ := json.Marshal(key.Interface())
	return strings.Trim(string(data), `"`)
}

func normalizeSlice(val reflect.Value) interface{} {
	if val.Kind() == reflect.Slice && val.IsNil() {
		return nil
	}

	length := val.Len()
	if length == 0 {
		return nil
	}

	result := make([]interface{}, length)
	for i := 0; i < length; i++ {
		result[i] = normalizeValue(val.Index(i).Interface())
	}
	return result
}

func normalizeStruct(val reflect.Value) interface{} {
	// time.Time and friends marshal themselves; don't walk their fields.
	if marshaler, ok := val.Interface().(json.Marshaler); ok {
		data, err := marshaler.MarshalJSON()
		if err == nil {
			var decoded interface{}
			if json.Unmarshal(data, &decoded) == nil {
				return decoded
			}
		}
	}

	result := make(map[string]interface{})
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		tagName, omitEmpty := parseJSONTag(jsonTag)
		if tagName == "" {
			tagName = field.Name
		}

		normalized := normalizeValue(val.Field(i).Interface())
		if omitEmpty && isZeroValue(normalized) {
			continue
		}
		if normalized != nil {
			result[tagName] = normalized
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

func parseJSONTag(tag string) (name string, omitEmpty bool) {
	if tag == "" {
		return "", false
	}

	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func isZeroValue(v interface{}) bool {
	if v == nil {
		return true
	}

	switch val := v.(type) {
	case bool:
		return !val
	case int, int8, int16, int32, int64:
		return val == 0
	case uint, uint8, uint16, uint32, uint64:
		return val == 0
	case float32, float64:
		return val == 0
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}
