package sandbox

import (
	"fmt"
	"os"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// snippetOpts enables while loops and recursion: the whole point of the
// process boundary is that genuinely runaway snippets are possible and still
// get killed.
var snippetOpts = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// run executes one snippet and is the worker's entire job. It never returns a
// Go error: every failure mode becomes Result.Error so the parent can hand a
// uniform result to the caller.
func run(req Request) *Result {
	guard, err := NewGuard(req.AllowedPath)
	if err != nil {
		return &Result{Bindings: map[string]any{}, Error: err.Error()}
	}

	predeclared, err := buildNamespace(req, guard)
	if err != nil {
		return &Result{Bindings: map[string]any{}, Error: err.Error()}
	}

	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(os.Stderr, msg)
		},
	}

	globals, execErr := starlark.ExecFileOptions(snippetOpts, thread, "snippet.star", req.Code, predeclared)

	res := &Result{Bindings: collectBindings(globals)}
	if execErr != nil {
		if evalErr, ok := execErr.(*starlark.EvalError); ok {
			// Message only, not the full call stack.
			res.Error = evalErr.Msg
		} else {
			res.Error = execErr.Error()
		}
	}
	return res
}

// buildNamespace assembles the capability table for one request. Precedence,
// low to high: guarded raw file primitives, import-module functions, named
// registry functions. The Starlark universe (len, range, print, ...) sits
// below all of these and contains nothing that touches the host.
func buildNamespace(req Request, guard *Guard) (starlark.StringDict, error) {
	ns := starlark.StringDict{}
	for name, fn := range fileBuiltins(guard) {
		ns[name] = fn
	}

	if req.ImportModule != "" {
		build, err := lookupModule(req.ImportModule)
		if err != nil {
			return nil, err
		}
		for name, fn := range build(req) {
			ns[name] = nativeBuiltin(name, fn)
		}
	}

	named, err := lookupFuncs(req.Funcs)
	if err != nil {
		return nil, err
	}
	for name, fn := range named {
		ns[name] = nativeBuiltin(name, fn)
	}
	return ns, nil
}

// fileBuiltins returns the raw file primitives. Starlark has no try/except,
// so denials follow the library convention instead of aborting: write_file
// returns False (nothing written), read_file returns an "Error: ..." string.
// The snippet can bind the outcome and carry on.
func fileBuiltins(guard *Guard) map[string]*starlark.Builtin {
	writeFile := func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("write_file: want 2 arguments (path, content), got %d", len(args))
		}
		path, ok1 := args[0].(string)
		content, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("write_file: path and content must be strings")
		}
		resolved, err := guard.Check(path)
		if err != nil {
			return false, nil
		}
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return false, nil
		}
		return true, nil
	}

	readFile := func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("read_file: want 1 argument (path), got %d", len(args))
		}
		path, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("read_file: path must be a string")
		}
		resolved, err := guard.Check(path)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}
		return string(data), nil
	}

	return map[string]*starlark.Builtin{
		"write_file": nativeBuiltin("write_file", writeFile),
		"read_file":  nativeBuiltin("read_file", readFile),
	}
}

// nativeBuiltin adapts a NativeFunc to a Starlark builtin, converting
// arguments and the return value at the boundary.
func nativeBuiltin(name string, fn NativeFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: keyword arguments are not supported", b.Name())
		}
		goArgs := make([]any, len(args))
		for i, arg := range args {
			v, ok := fromStarlark(arg)
			if !ok {
				return nil, fmt.Errorf("%s: argument %d has unsupported type %s", b.Name(), i+1, arg.Type())
			}
			goArgs[i] = v
		}
		out, err := fn(goArgs)
		if err != nil {
			return nil, err
		}
		return toStarlark(out)
	})
}

// collectBindings filters the module globals down to JSON-safe values.
// Functions and other host-bound values are dropped, never an error: the
// contract is that bindings always cross the process boundary cleanly.
func collectBindings(globals starlark.StringDict) map[string]any {
	out := map[string]any{}
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v, ok := fromStarlark(globals[name]); ok {
			out[name] = v
		}
	}
	return out
}

func fromStarlark(v starlark.Value) (any, bool) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, true
	case starlark.Bool:
		return bool(v), true
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, true
		}
		return v.String(), true
	case starlark.Float:
		return float64(v), true
	case starlark.String:
		return string(v), true
	case *starlark.List:
		return fromSequence(v.Len(), v.Index)
	case starlark.Tuple:
		return fromSequence(v.Len(), v.Index)
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, false
			}
			val, ok := fromStarlark(item[1])
			if !ok {
				return nil, false
			}
			out[string(key)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func fromSequence(n int, index func(int) starlark.Value) (any, bool) {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, ok := fromStarlark(index(i))
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := toStarlark(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for key, val := range v {
			sv, err := toStarlark(val)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(key), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
