// Package sandbox executes untrusted, model-generated Starlark snippets in an
// isolated child process. The parent side (Executor) spawns a re-exec'd worker
// of the same binary, sends the request as JSON on stdin, and enforces a
// wall-clock timeout by killing the worker's process group. The child side
// builds an explicit capability table per request — Starlark has no ambient
// filesystem, network, or process access, so the predeclared namespace is the
// entire attack surface.
package sandbox

import "time"

// DefaultTimeout bounds snippet execution when the request doesn't set one.
const DefaultTimeout = 20 * time.Second

// Request describes one snippet execution. It crosses the process boundary as
// JSON, so functions are referenced by name and resolved against the registry
// in the worker (both sides share the binary).
type Request struct {
	// Code is the Starlark snippet to execute.
	Code string `json:"code"`

	// AllowedPath restricts the raw file primitives to one directory
	// subtree. Empty means unrestricted (trusted-caller mode).
	AllowedPath string `json:"allowed_path,omitempty"`

	// Funcs names functions from the process-local registry to expose in
	// the snippet namespace. They take precedence over ImportModule on
	// name collisions.
	Funcs []string `json:"funcs,omitempty"`

	// ImportModule names a registered module whose public functions are
	// bound into the namespace (e.g. "memory").
	ImportModule string `json:"import_module,omitempty"`

	// MemoryRoot is the base directory handed to module constructors.
	// Defaults to AllowedPath.
	MemoryRoot string `json:"memory_root,omitempty"`

	// Limits caps filesystem writes made by module functions. A zero value
	// leaves the module's own defaults in place.
	Limits WriteLimits `json:"limits,omitempty"`

	// Timeout is parent-side only; it never crosses the boundary.
	Timeout time.Duration `json:"-"`
}

// WriteLimits caps the bytes a filesystem-backed module may write. Zero
// fields mean "module default".
type WriteLimits struct {
	FileBytes  int64 `json:"file_bytes,omitempty"`
	DirBytes   int64 `json:"dir_bytes,omitempty"`
	TotalBytes int64 `json:"total_bytes,omitempty"`
}

// Result is what a snippet execution produced. Error is empty on success;
// snippet-authored failures (syntax errors, fail(), runtime errors, timeout)
// are reported here rather than as a Go error.
type Result struct {
	// Bindings holds the snippet's top-level variables, filtered to
	// JSON-safe values. Best-effort partial on runtime errors, absent on
	// timeout.
	Bindings map[string]any `json:"bindings"`
	Error    string         `json:"error"`
}

// Root returns the directory module constructors should use.
func (r Request) Root() string {
	if r.MemoryRoot != "" {
		return r.MemoryRoot
	}
	return r.AllowedPath
}
