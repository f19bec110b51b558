package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// workerEnv marks a process as a sandbox worker. The parent re-execs its own
// binary with this set; Init detects it at startup.
const workerEnv = "RECALL_SANDBOX_WORKER"

// Init runs the sandbox worker when this process was spawned as one, and
// returns true to tell the caller to exit. It must be called at the very top
// of main (and from TestMain in packages that exercise the executor), after
// all Register/RegisterModule calls.
func Init() bool {
	if os.Getenv(workerEnv) != "1" {
		return false
	}
	if err := runWorker(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return true
}

// runWorker handles exactly one request: decode, execute, encode. Protocol
// errors are fatal — the parent reports them as infrastructure failures.
func runWorker(in io.Reader, out io.Writer) error {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("sandbox worker: decoding request: %w", err)
	}
	if err := json.NewEncoder(out).Encode(run(req)); err != nil {
		return fmt.Errorf("sandbox worker: encoding result: %w", err)
	}
	return nil
}
