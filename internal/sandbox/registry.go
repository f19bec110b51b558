package sandbox

import (
	"fmt"
	"sort"
	"sync"
)

// NativeFunc is a host function callable from a snippet. Arguments and the
// return value are JSON-safe Go values (bool, int64, float64, string, []any,
// map[string]any, nil). A returned error aborts the snippet.
type NativeFunc func(args []any) (any, error)

// ModuleFunc builds the function set of a named module for one request.
// It receives the request so modules can bind to the request's memory root.
type ModuleFunc func(req Request) map[string]NativeFunc

var (
	regMu   sync.RWMutex
	funcs   = map[string]NativeFunc{}
	modules = map[string]ModuleFunc{}
)

// Register makes fn available to snippets that name it in Request.Funcs.
// Registration must happen before Init so the worker process sees the same
// table as the parent; package init functions are the natural place.
func Register(name string, fn NativeFunc) {
	regMu.Lock()
	defer regMu.Unlock()
	funcs[name] = fn
}

// RegisterModule makes a module available to snippets via
// Request.ImportModule. Same ordering rule as Register.
func RegisterModule(name string, build ModuleFunc) {
	regMu.Lock()
	defer regMu.Unlock()
	modules[name] = build
}

func lookupFuncs(names []string) (map[string]NativeFunc, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make(map[string]NativeFunc, len(names))
	for _, name := range names {
		fn, ok := funcs[name]
		if !ok {
			return nil, fmt.Errorf("unknown function %q (not registered)", name)
		}
		out[name] = fn
	}
	return out, nil
}

func lookupModule(name string) (ModuleFunc, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	build, ok := modules[name]
	if !ok {
		return nil, fmt.Errorf("unknown module %q (not registered)", name)
	}
	return build, nil
}

// RegisteredModules returns the registered module names, sorted. Used by the
// CLI to report what snippets can import.
func RegisteredModules() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
