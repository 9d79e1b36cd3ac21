package starbind

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// toStarlarkValue converts the values produced by Context.State into
// starlark values. Maps become dicts with sorted keys, slices become
// lists.
func toStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case bool:
		return starlark.Bool(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case uint64:
		return starlark.MakeUint64(v)
	case string:
		return starlark.String(v)
	case error:
		return starlark.String(v.Error())
	case []string:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			elems[i] = starlark.String(v[i])
		}
		return starlark.NewList(elems)
	case []interface{}:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			elems[i] = toStarlarkValue(v[i])
		}
		return starlark.NewList(elems)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := starlark.NewDict(len(v))
		for _, k := range keys {
			r.SetKey(starlark.String(k), starlark.String(v[k]))
		}
		return r
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := starlark.NewDict(len(v))
		for _, k := range keys {
			r.SetKey(starlark.String(k), toStarlarkValue(v[k]))
		}
		return r
	default:
		return starlark.String(fmt.Sprintf("%v", v))
	}
}

// stringArgs checks that every positional argument of the builtin called
// name is a string.
func stringArgs(name string, args starlark.Tuple) ([]string, error) {
	r := make([]string, len(args))
	for i := range args {
		s, ok := starlark.AsString(args[i])
		if !ok {
			return nil, fmt.Errorf("argument %d of %s is not a string", i+1, name)
		}
		r[i] = s
	}
	return r, nil
}
