package registry

import (
	"errors"
	"math"
	"reflect"
	"sort"

	"github.com/entrhq/autopilot/pkg/task"
)

// Validate checks call against the schema of the tool it names. Unknown
// tools are reported as a *ValidationError wrapping *NotFoundError.
func (r *Registry) Validate(call task.ToolCall) error {
	d, ok := r.tools[call.ToolName]
	if !ok {
		_, err := r.Resolve(call.ToolName)
		return &ValidationError{Tool: call.ToolName, Err: err}
	}
	return validateArguments(d, call.Arguments)
}

func validateArguments(d ToolDescriptor, arguments map[string]any) error {
	schema := d.Schema
	if len(schema) == 0 {
		return nil
	}

	required, err := requiredFields(schema["required"])
	if err != nil {
		return &ValidationError{Tool: d.Name, Err: err}
	}
	for _, field := range required {
		if _, ok := arguments[field]; !ok {
			return &ValidationError{Tool: d.Name, Argument: field, Reason: "is required"}
		}
	}

	properties, hasProperties := schema["properties"].(map[string]any)
	additionalAllowed := true
	if raw, ok := schema["additionalProperties"]; ok {
		b, isBool := raw.(bool)
		if !isBool {
			return &ValidationError{Tool: d.Name, Err: errors.New(`schema "additionalProperties" must be a bool`)}
		}
		additionalAllowed = b
	}

	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		property, known := properties[key]
		if !known {
			if hasProperties && !additionalAllowed {
				return &ValidationError{Tool: d.Name, Argument: key, Reason: "is not accepted"}
			}
			continue
		}
		propertyMap, ok := property.(map[string]any)
		if !ok {
			continue
		}
		expected, ok := propertyMap["type"].(string)
		if !ok {
			continue
		}
		if !matchesType(expected, arguments[key]) {
			return &ValidationError{Tool: d.Name, Argument: key, Reason: "must be of type " + expected}
		}
		if enum, ok := propertyMap["enum"].([]any); ok && !inEnum(enum, arguments[key]) {
			return &ValidationError{Tool: d.Name, Argument: key, Reason: "is not one of the allowed values"}
		}
	}
	return nil
}

func requiredFields(raw any) ([]string, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return value, nil
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			field, ok := item.(string)
			if !ok {
				return nil, errors.New(`schema "required" entries must be strings`)
			}
			out = append(out, field)
		}
		return out, nil
	default:
		return nil, errors.New(`schema "required" must be an array`)
	}
}

func matchesType(expected string, value any) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		return isInteger(value)
	case "object":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Map
	case "array":
		if value == nil {
			return false
		}
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case "null":
		return value == nil
	default:
		return true
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// isInteger accepts whole float64 values because JSON decoding produces them.
func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		f := float64(v)
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	default:
		return false
	}
}

// inEnum compares numbers by value, so an int argument matches the float64
// an enum decodes to. Arrays and objects compare structurally.
func inEnum(enum []any, value any) bool {
	want := normalizeJSON(value)
	for _, allowed := range enum {
		if reflect.DeepEqual(normalizeJSON(allowed), want) {
			return true
		}
	}
	return false
}

// normalizeJSON rewrites every number in v as float64.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSON(item)
		}
		return out
	}
	if !isNumber(v) {
		return v
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.CanInt():
		return float64(rv.Int())
	case rv.CanUint():
		return float64(rv.Uint())
	default:
		return rv.Float()
	}
}
