package sandbox_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/recall/internal/sandbox"

	// Registers the "memory" sandbox module in the worker.
	_ "github.com/michaelbrown/recall/internal/memory"
)

// TestMain doubles as the worker entry point: the executor re-execs the test
// binary, so registrations must happen before Init.
func TestMain(m *testing.M) {
	sandbox.Register("add", func(args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("add: want 2 arguments, got %d", len(args))
		}
		a, ok1 := args[0].(int64)
		b, ok2 := args[1].(int64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("add: arguments must be ints")
		}
		return a + b, nil
	})

	if sandbox.Init() {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, req sandbox.Request) *sandbox.Result {
	t.Helper()
	res, err := (&sandbox.Executor{}).Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return res
}

// Bindings cross the process boundary as JSON, so numbers arrive as float64.
func number(t *testing.T, res *sandbox.Result, name string) float64 {
	t.Helper()
	v, ok := res.Bindings[name].(float64)
	if !ok {
		t.Fatalf("binding %q = %#v, want a number", name, res.Bindings[name])
	}
	return v
}

func TestSimpleExpression(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "x = 1 + 1"})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if got := number(t, res, "x"); got != 2 {
		t.Errorf("x = %v, want 2", got)
	}
}

func TestStringOperations(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "result = 'hello ' + 'world'"})
	if res.Bindings["result"] != "hello world" {
		t.Errorf("result = %#v, want %q", res.Bindings["result"], "hello world")
	}
}

func TestListOperations(t *testing.T) {
	code := "items = [1, 2, 3]\ntotal = 0\nfor x in items:\n    total += x\n"
	res := execute(t, sandbox.Request{Code: code})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if got := number(t, res, "total"); got != 6 {
		t.Errorf("total = %v, want 6", got)
	}
}

func TestMultipleVariables(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "a = 10\nb = 20\nc = a + b"})
	if got := number(t, res, "c"); got != 30 {
		t.Errorf("c = %v, want 30", got)
	}
}

func TestEmptySnippet(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "pass"})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if len(res.Bindings) != 0 {
		t.Errorf("bindings = %v, want empty", res.Bindings)
	}
}

func TestFailIsCaptured(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "fail('test error')"})
	if res.Error == "" {
		t.Fatal("error should be non-empty")
	}
	if !strings.Contains(res.Error, "test error") {
		t.Errorf("error = %q, want it to mention the failure", res.Error)
	}
}

func TestDivisionByZero(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "x = 1 // 0"})
	if !strings.Contains(res.Error, "division by zero") {
		t.Errorf("error = %q, want a division-by-zero message", res.Error)
	}
}

func TestUndefinedName(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "x = undefined_variable"})
	if res.Error == "" {
		t.Fatal("error should be non-empty")
	}
}

func TestSyntaxError(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "def broken("})
	if res.Error == "" {
		t.Fatal("error should be non-empty")
	}
	if len(res.Bindings) != 0 {
		t.Errorf("bindings = %v, want empty on a syntax error", res.Bindings)
	}
}

func TestPartialBindingsOnError(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "a = 1\nb = 2\nfail('midway')"})
	if res.Error == "" {
		t.Fatal("error should be non-empty")
	}
	if got := number(t, res, "a"); got != 1 {
		t.Errorf("a = %v, want 1 (best-effort partial bindings)", got)
	}
}

func TestTimeoutIsEnforced(t *testing.T) {
	start := time.Now()
	res := execute(t, sandbox.Request{
		Code:    "while True:\n    pass\n",
		Timeout: 2 * time.Second,
	})
	elapsed := time.Since(start)

	if !strings.Contains(strings.ToLower(res.Error), "timeout") {
		t.Errorf("error = %q, want a timeout message", res.Error)
	}
	if len(res.Bindings) != 0 {
		t.Errorf("bindings = %v, want none after a timeout", res.Bindings)
	}
	if elapsed > 10*time.Second {
		t.Errorf("execution took %s, want a prompt kill after the 2s timeout", elapsed)
	}
}

func TestAllowedPathWriteAndRead(t *testing.T) {
	allowed := t.TempDir()
	code := fmt.Sprintf(
		"ok = write_file('%[1]s/test.txt', 'hello')\ncontent = read_file('%[1]s/test.txt')\n",
		allowed,
	)
	res := execute(t, sandbox.Request{Code: code, AllowedPath: allowed})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if res.Bindings["ok"] != true {
		t.Errorf("ok = %#v, want true", res.Bindings["ok"])
	}
	if res.Bindings["content"] != "hello" {
		t.Errorf("content = %#v, want %q", res.Bindings["content"], "hello")
	}
}

func TestAccessOutsideAllowedPathIsDenied(t *testing.T) {
	parent := t.TempDir()
	allowed := filepath.Join(parent, "memory")
	if err := os.MkdirAll(allowed, 0o755); err != nil {
		t.Fatal(err)
	}

	outside := filepath.Join(parent, "secret.txt")
	code := fmt.Sprintf("escaped = write_file('%s', 'escaped')\n", outside)
	res := execute(t, sandbox.Request{Code: code, AllowedPath: allowed})

	if res.Error != "" {
		t.Fatalf("error = %q, want empty (denial is reported in the binding)", res.Error)
	}
	if res.Bindings["escaped"] != false {
		t.Errorf("escaped = %#v, want false", res.Bindings["escaped"])
	}
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Error("the file outside the allowed path must not be created")
	}
}

func TestNoAllowedPathIsUnrestricted(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "trusted.txt")
	code := fmt.Sprintf("ok = write_file('%s', 'trusted')\n", target)
	res := execute(t, sandbox.Request{Code: code})

	if res.Bindings["ok"] != true {
		t.Fatalf("ok = %#v, want true in trusted-caller mode", res.Bindings["ok"])
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "trusted" {
		t.Errorf("file content = %q, err = %v", data, err)
	}
}

func TestRegisteredFunctionIsCallable(t *testing.T) {
	res := execute(t, sandbox.Request{
		Code:  "result = add(3, 4)",
		Funcs: []string{"add"},
	})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if got := number(t, res, "result"); got != 7 {
		t.Errorf("result = %v, want 7", got)
	}
}

func TestUnknownFunctionIsReported(t *testing.T) {
	res := execute(t, sandbox.Request{Code: "x = 1", Funcs: []string{"never_registered"}})
	if res.Error == "" {
		t.Fatal("error should name the unknown function")
	}
}

func TestImportModuleExposesMemoryOps(t *testing.T) {
	allowed := t.TempDir()
	res := execute(t, sandbox.Request{
		Code:         "result = check_if_file_exists('nonexistent.md')",
		AllowedPath:  allowed,
		ImportModule: "memory",
	})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if res.Bindings["result"] != false {
		t.Errorf("result = %#v, want false", res.Bindings["result"])
	}
}

func TestMemoryModuleRoundTrip(t *testing.T) {
	allowed := t.TempDir()
	code := strings.Join([]string{
		"created = create_file('entities/alice.md', '# Alice\\n- company: Acme Corp\\n')",
		"content = go_to_link('[[entities/alice]]')",
		"same = go_to_link('[[entities/alice.md]]') == content",
	}, "\n")
	res := execute(t, sandbox.Request{
		Code:         code,
		AllowedPath:  allowed,
		ImportModule: "memory",
	})
	if res.Error != "" {
		t.Fatalf("error = %q, want empty", res.Error)
	}
	if res.Bindings["created"] != true || res.Bindings["same"] != true {
		t.Errorf("bindings = %#v", res.Bindings)
	}
	if content, _ := res.Bindings["content"].(string); !strings.Contains(content, "Acme Corp") {
		t.Errorf("content = %#v", res.Bindings["content"])
	}
}
