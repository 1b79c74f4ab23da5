//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

func main() {
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	outputs := []struct {
		path string
		gen  func() ([]byte, error)
	}{
		{"schemas/script.json", model.GenerateScriptJSONSchema},
		{"schemas/triggers.json", model.GenerateTriggerJSONSchema},
	}
	for _, o := range outputs {
		data, err := o.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error generating %s: %v\n", o.path, err)
			os.Exit(1)
		}
		if err := os.WriteFile(o.path, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote " + o.path)
	}
}
