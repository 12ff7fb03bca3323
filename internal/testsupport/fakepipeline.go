// Package testsupport provides shared helpers for exercising the relay
// against harmless stand-in subprocesses instead of a real transcoding
// pipeline.
package testsupport

import (
	"os/exec"
	"testing"
)

// RequireTool skips the test when the named binary is not on PATH.
func RequireTool(t testing.TB, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

// SinkCommand builds subprocesses that consume stdin and exit when it
// closes, mimicking a well-behaved pipeline.
func SinkCommand() func(name string, args ...string) *exec.Cmd {
	return func(string, ...string) *exec.Cmd {
		return exec.Command("cat")
	}
}

// FileSinkCommand builds subprocesses that copy stdin to path, so tests can
// assert exactly what reached the pipeline and in what order.
func FileSinkCommand(path string) func(name string, args ...string) *exec.Cmd {
	return func(string, ...string) *exec.Cmd {
		return exec.Command("sh", "-c", "cat > "+path)
	}
}

// ScriptCommand builds subprocesses running an arbitrary shell script, for
// simulating pipelines that crash, stall, or write diagnostics.
func ScriptCommand(script string) func(name string, args ...string) *exec.Cmd {
	return func(string, ...string) *exec.Cmd {
		return exec.Command("sh", "-c", script)
	}
}
