// Package starlark exposes a definitions database to Starlark scripts
// through a predeclared "defs" module.
package starlark

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/defsdb/pkg/defsdb"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// EntityToStarlark converts an entity view to a struct with the fields
// kind, id, name, superclass, included_modules, ancestors, constants,
// class_name and methods. Missing references are None.
func EntityToStarlark(v defsdb.EntityView) starlark.Value {
	methods := make([]starlark.Value, len(v.Methods))
	for i, m := range v.Methods {
		methods[i] = MethodToStarlark(m)
	}
	return starlarkstruct.FromStringDict(starlark.String(v.Kind), starlark.StringDict{
		"kind":             starlark.String(v.Kind),
		"id":               optionalString(string(v.ID)),
		"name":             starlark.String(v.Name),
		"superclass":       optionalString(v.Superclass),
		"included_modules": stringList(v.IncludedModules),
		"ancestors":        stringList(v.Ancestors),
		"constants":        stringList(v.Constants),
		"class_name":       optionalString(v.Class),
		"methods":          starlark.NewList(methods),
	})
}

// MethodToStarlark converts a method view to a struct. Parameters become
// (kind, name) tuples; a parameter without a name has None there.
func MethodToStarlark(m defsdb.MethodView) starlark.Value {
	params := make([]starlark.Value, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = starlark.Tuple{starlark.String(p.Kind), optionalString(p.Name)}
	}
	return starlarkstruct.FromStringDict(starlark.String("method"), starlark.StringDict{
		"name":       starlark.String(m.Name),
		"visibility": starlark.String(m.Visibility),
		"singleton":  starlark.Bool(m.Singleton),
		"defined_in": optionalString(m.DefinedIn),
		"owner":      optionalString(m.Owner),
		"location":   optionalString(m.Location),
		"parameters": starlark.NewList(params),
	})
}

// StatsToStarlark converts database counts to a struct.
func StatsToStarlark(s defsdb.Stats) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("stats"), starlark.StringDict{
		"modules":            starlark.MakeInt(s.Modules),
		"classes":            starlark.MakeInt(s.Classes),
		"toplevel":           starlark.MakeInt(s.TopLevel),
		"method_bodies":      starlark.MakeInt(s.MethodBodies),
		"method_definitions": starlark.MakeInt(s.MethodDefinitions),
		"required_libs":      starlark.MakeInt(s.RequiredLibs),
	})
}

func optionalString(s string) starlark.Value {
	if s == "" {
		return starlark.None
	}
	return starlark.String(s)
}

func stringList(ss []string) *starlark.List {
	list := make([]starlark.Value, len(ss))
	for i, s := range ss {
		list[i] = starlark.String(s)
	}
	return starlark.NewList(list)
}

// ToGo converts a Starlark value back to a Go value suitable for JSON
// encoding. Returns string, int64, float64, bool, []any, map[string]any
// or nil. Structs become maps keyed by field name.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Fallback for very large integers - convert to string
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		return sequenceToGo(val, "list")

	case starlark.Tuple:
		return sequenceToGo(val, "tuple")

	case *starlark.Dict:
		result := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case *starlarkstruct.Struct:
		names := val.AttrNames()
		sort.Strings(names)
		result := make(map[string]any, len(names))
		for _, name := range names {
			field, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			gv, err := ToGo(field)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			result[name] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}

func sequenceToGo(seq starlark.Indexable, kind string) ([]any, error) {
	result := make([]any, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		gv, err := ToGo(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s index %d: %w", kind, i, err)
		}
		result[i] = gv
	}
	return result, nil
}

// GoToStarlark converts a Go value to a Starlark value.
// Supported types: string, int, int64, float64, bool, []string, []any, map[string]any
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []string:
		return stringList(val), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := GoToStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, fmt.Errorf("dict setkey %q: %w", k, err)
			}
		}
		return dict, nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
