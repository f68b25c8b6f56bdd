package adapters

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external system commands. Adapters never call the exec
// package directly: routing every invocation through a Runner lets tests
// substitute a fake and assert on the exact commands an apply produced.
type Runner interface {
	// Run executes name with args and returns its combined output. A
	// non-zero exit or an unresolvable binary is an error carrying the
	// output.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports whether name resolves to an executable.
	LookPath(name string) bool
}

// execRunner runs commands on the host.
type execRunner struct{}

// ExecRunner returns the Runner backed by os/exec.
func ExecRunner() Runner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, text)
		}
		return text, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return text, nil
}

func (execRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
