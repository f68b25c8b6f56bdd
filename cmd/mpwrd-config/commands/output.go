package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

func encodeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printChanges(changes []engine.Change) {
	if len(changes) == 0 {
		fmt.Println("No changes. System state matches the configuration.")
		return
	}
	fmt.Printf("%d change(s):\n", len(changes))
	for _, c := range changes {
		fmt.Printf("  %-32s %s -> %s\n", c.Field, orEmpty(c.Before), orEmpty(c.After))
	}
}

func printResult(res *engine.Result) {
	fmt.Printf("run %s: %s\n", res.RunID, res.State)
	for _, w := range res.PolicyWarnings {
		fmt.Printf("  warning [%s]: %s\n", w.Policy, w.Message)
	}
	for _, a := range res.Applied {
		fmt.Printf("  applied %-30s %s -> %s\n", a.Field, orEmpty(a.Before), orEmpty(a.After))
	}
	for _, f := range res.Failures {
		fmt.Printf("  FAILED  %-30s %v\n", f.Field, f.Err)
	}
	for _, r := range res.ReadFailures {
		fmt.Printf("  read failure in %s: %v (diffed against defaults)\n", r.Domain, r.Err)
	}
}

func orEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
