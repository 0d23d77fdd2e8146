package jsvm

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// notAMethod is the sentinel callBuiltinMethod returns when prop isn't a
// recognized builtin method on obj, so evalCall falls through to a plain
// member lookup (user-defined methods stashed in object literals).
var notAMethod = &struct{ _ byte }{}

// installBuiltins wires the whitelisted global surface: Math, JSON, Date,
// console-style log, and array/string/object helper functions exposed as
// free functions (Array.isArray-style statics live
// under their namespace objects; instance-style methods like
// arr.push(...) are handled in callBuiltinMethod instead, since jsvm has
// no real prototype chain).
func (itp *interp) installBuiltins() {
	itp.env.set("log", native("log", func(_ *interp, args []any) any {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = toStr(a)
		}
		fmt.Println(strings.Join(parts, " "))
		return nil
	}))

	itp.env.set("Math", map[string]any{
		"PI":  math.Pi,
		"E":   math.E,
		"abs": native("abs", func(_ *interp, a []any) any { return math.Abs(arg0(a)) }),
		"floor": native("floor", func(_ *interp, a []any) any { return math.Floor(arg0(a)) }),
		"ceil":  native("ceil", func(_ *interp, a []any) any { return math.Ceil(arg0(a)) }),
		"round": native("round", func(_ *interp, a []any) any { return math.Round(arg0(a)) }),
		"sqrt":  native("sqrt", func(_ *interp, a []any) any { return math.Sqrt(arg0(a)) }),
		"pow": native("pow", func(_ *interp, a []any) any {
			if len(a) < 2 {
				return math.NaN()
			}
			b, _ := toNumber(a[0])
			e, _ := toNumber(a[1])
			return math.Pow(b, e)
		}),
		"max": native("max", func(_ *interp, a []any) any {
			m := math.Inf(-1)
			for _, v := range a {
				f, _ := toNumber(v)
				if f > m {
					m = f
				}
			}
			return m
		}),
		"min": native("min", func(_ *interp, a []any) any {
			m := math.Inf(1)
			for _, v := range a {
				f, _ := toNumber(v)
				if f < m {
					m = f
				}
			}
			return m
		}),
		"random": native("random", func(itp *interp, _ []any) any {
			// Deterministic under sandboxing: no entropy source is
			// exposed to untrusted code, so random() always yields 0.5.
			return 0.5
		}),
	})

	itp.env.set("JSON", map[string]any{
		"stringify": native("stringify", func(_ *interp, a []any) any {
			if len(a) == 0 {
				return "undefined"
			}
			b, err := json.Marshal(a[0])
			if err != nil {
				return ""
			}
			return string(b)
		}),
		"parse": native("parse", func(_ *interp, a []any) any {
			if len(a) == 0 {
				return nil
			}
			s, _ := a[0].(string)
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				panic(controlErr{fmt.Errorf("JSON.parse: %w", err)})
			}
			return normalizeJSON(v)
		}),
	})

	itp.env.set("Date", map[string]any{
		// now() is the only Date surface the restricted grammar needs: the
		// sanitizer's injected loop guards call Date.now() to measure
		// elapsed wall-clock time against the timeout threshold.
		"now": native("now", func(_ *interp, _ []any) any {
			return float64(time.Now().UnixMilli())
		}),
	})

	itp.env.set("Object", map[string]any{
		"keys": native("keys", func(_ *interp, a []any) any {
			m, _ := arg0Map(a)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = k
			}
			return out
		}),
		"values": native("values", func(_ *interp, a []any) any {
			m, _ := arg0Map(a)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = m[k]
			}
			return out
		}),
		"assign": native("assign", func(_ *interp, a []any) any {
			if len(a) == 0 {
				return map[string]any{}
			}
			target, _ := a[0].(map[string]any)
			if target == nil {
				target = map[string]any{}
			}
			for _, src := range a[1:] {
				if sm, ok := src.(map[string]any); ok {
					for k, v := range sm {
						target[k] = v
					}
				}
			}
			return target
		}),
	})

	itp.env.set("Array", map[string]any{
		"isArray": native("isArray", func(_ *interp, a []any) any {
			if len(a) == 0 {
				return false
			}
			_, ok := a[0].([]any)
			return ok
		}),
	})

	itp.env.set("String", native("String", func(_ *interp, a []any) any {
		if len(a) == 0 {
			return ""
		}
		return toStr(a[0])
	}))

	itp.env.set("Number", native("Number", func(_ *interp, a []any) any {
		if len(a) == 0 {
			return 0.0
		}
		f, ok := toNumber(a[0])
		if !ok {
			return math.NaN()
		}
		return f
	}))

	itp.env.set("Boolean", native("Boolean", func(_ *interp, a []any) any {
		if len(a) == 0 {
			return false
		}
		return truthy(a[0])
	}))
}

func native(name string, fn func(itp *interp, args []any) any) *nativeFunction {
	return &nativeFunction{name: name, fn: fn}
}

func arg0(a []any) float64 {
	if len(a) == 0 {
		return math.NaN()
	}
	f, _ := toNumber(a[0])
	return f
}

func arg0Map(a []any) (map[string]any, bool) {
	if len(a) == 0 {
		return nil, false
	}
	m, ok := a[0].(map[string]any)
	return m, ok
}

// normalizeJSON converts encoding/json's generic decode output
// ([]interface{}, map[string]interface{}, float64) into jsvm's own
// []any/map[string]any/float64 convention recursively.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSON(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeJSON(e)
		}
		return out
	default:
		return t
	}
}

// callBuiltinMethod implements instance-style methods (arr.push(x),
// str.split(",")) that jsvm doesn't route through object-literal member
// lookup, since arrays/strings aren't backed by a real prototype object.
// Returns notAMethod when obj/prop isn't one of these.
func (itp *interp) callBuiltinMethod(obj any, prop string, args []any) any {
	switch o := obj.(type) {
	case []any:
		switch prop {
		case "push":
			itp.charge(int64(len(args)))
			return append(o, args...)
		case "pop":
			if len(o) == 0 {
				return nil
			}
			return o[len(o)-1]
		case "includes":
			if len(args) == 0 {
				return false
			}
			for _, e := range o {
				if looseEqual(e, args[0]) {
					return true
				}
			}
			return false
		case "indexOf":
			if len(args) == 0 {
				return -1.0
			}
			for i, e := range o {
				if looseEqual(e, args[0]) {
					return float64(i)
				}
			}
			return -1.0
		case "join":
			sep := ","
			if len(args) > 0 {
				sep = toStr(args[0])
			}
			parts := make([]string, len(o))
			for i, e := range o {
				parts[i] = toStr(e)
			}
			return strings.Join(parts, sep)
		case "slice":
			return sliceArray(o, args)
		case "filter":
			fn := argFunc(args)
			if fn == nil {
				return o
			}
			var out []any
			for i, e := range o {
				if truthy(itp.callValue(fn, []any{e, float64(i)})) {
					out = append(out, e)
				}
			}
			return out
		case "map":
			fn := argFunc(args)
			if fn == nil {
				return o
			}
			out := make([]any, len(o))
			for i, e := range o {
				out[i] = itp.callValue(fn, []any{e, float64(i)})
			}
			return out
		case "forEach":
			fn := argFunc(args)
			if fn == nil {
				return nil
			}
			for i, e := range o {
				itp.callValue(fn, []any{e, float64(i)})
			}
			return nil
		case "reduce":
			fn := argFunc(args)
			if fn == nil {
				return nil
			}
			var acc any
			start := 0
			if len(args) > 1 {
				acc = args[1]
			} else if len(o) > 0 {
				acc = o[0]
				start = 1
			}
			for i := start; i < len(o); i++ {
				acc = itp.callValue(fn, []any{acc, o[i], float64(i)})
			}
			return acc
		}
	case string:
		switch prop {
		case "split":
			sep := ""
			if len(args) > 0 {
				sep = toStr(args[0])
			}
			parts := strings.Split(o, sep)
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out
		case "toUpperCase":
			return strings.ToUpper(o)
		case "toLowerCase":
			return strings.ToLower(o)
		case "trim":
			return strings.TrimSpace(o)
		case "includes":
			if len(args) == 0 {
				return false
			}
			return strings.Contains(o, toStr(args[0]))
		case "startsWith":
			if len(args) == 0 {
				return false
			}
			return strings.HasPrefix(o, toStr(args[0]))
		case "endsWith":
			if len(args) == 0 {
				return false
			}
			return strings.HasSuffix(o, toStr(args[0]))
		case "slice":
			return sliceString(o, args)
		case "charAt":
			i := 0
			if len(args) > 0 {
				i = int(mustFloat(args[0]))
			}
			if i < 0 || i >= len(o) {
				return ""
			}
			return string(o[i])
		case "indexOf":
			if len(args) == 0 {
				return -1.0
			}
			return float64(strings.Index(o, toStr(args[0])))
		case "repeat":
			if len(args) == 0 {
				return ""
			}
			n := int(mustFloat(args[0]))
			if n < 0 {
				panic(controlErr{fmt.Errorf("String.repeat: negative count")})
			}
			itp.charge(int64(n * len(o)))
			return strings.Repeat(o, n)
		}
	case float64:
		switch prop {
		case "toFixed":
			digits := 0
			if len(args) > 0 {
				digits = int(mustFloat(args[0]))
			}
			return strconv.FormatFloat(o, 'f', digits, 64)
		case "toString":
			return toStr(o)
		}
	}
	return notAMethod
}

func argFunc(args []any) any {
	if len(args) == 0 {
		return nil
	}
	switch args[0].(type) {
	case *jsFunction, *nativeFunction:
		return args[0]
	}
	return nil
}

func sliceArray(o []any, args []any) []any {
	start, end := sliceBounds(len(o), args)
	if start >= end {
		return []any{}
	}
	out := make([]any, end-start)
	copy(out, o[start:end])
	return out
}

func sliceString(o string, args []any) string {
	start, end := sliceBounds(len(o), args)
	if start >= end {
		return ""
	}
	return o[start:end]
}

func sliceBounds(length int, args []any) (int, int) {
	start, end := 0, length
	if len(args) > 0 {
		start = normalizeIndex(int(mustFloat(args[0])), length)
	}
	if len(args) > 1 {
		end = normalizeIndex(int(mustFloat(args[1])), length)
	}
	if start > end {
		start = end
	}
	return start, end
}

func normalizeIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
