package tools

import "math"

// Arg returns args[i], or nil when absent.
func Arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// OptionsArg returns the option bag at args[i]. An absent or nil value
// yields an empty map.
func OptionsArg(args []any, i int) (map[string]any, error) {
	switch v := Arg(args, i).(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		if v == nil {
			return map[string]any{}, nil
		}
		return v, nil
	default:
		return nil, NewError(CodeInvalidArgument, "options must be an object")
	}
}

// IntOption reads an integer option. Missing or nil values yield def.
// JSON numbers (float64) are accepted when integral. ok is false when the
// value is present but not an integer.
func IntOption(opts map[string]any, key string, def int) (n int, ok bool) {
	v, present := opts[key]
	if !present || v == nil {
		return def, true
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, false
		}
		return int(x), true
	default:
		return 0, false
	}
}

// StringOption reads a string option. ok is false when the value is
// present but not a string.
func StringOption(opts map[string]any, key string) (s string, present, ok bool) {
	v, present := opts[key]
	if !present || v == nil {
		return "", false, true
	}
	s, ok = v.(string)
	return s, true, ok
}

// BoolOption reads a boolean option. Missing or nil values yield def.
func BoolOption(opts map[string]any, key string, def bool) (b, ok bool) {
	v, present := opts[key]
	if !present || v == nil {
		return def, true
	}
	b, ok = v.(bool)
	return b, ok
}

// StringSlice converts []string or []any holding only strings. ok is false
// for any other shape or element type.
func StringSlice(v any) (out []string, isList, ok bool) {
	switch x := v.(type) {
	case []string:
		out = make([]string, len(x))
		copy(out, x)
		return out, true, true
	case []any:
		out = make([]string, 0, len(x))
		for _, e := range x {
			s, isString := e.(string)
			if !isString {
				return nil, true, false
			}
			out = append(out, s)
		}
		return out, true, true
	default:
		return nil, false, false
	}
}

// Pick copies the named keys from a bag. Missing keys map to nil so a
// resolver never aliases the caller's bag.
func Pick(args map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = args[k]
	}
	return out
}
