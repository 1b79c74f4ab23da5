package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:       "schema [script|trigger]",
	Short:     "Export the JSON Schema of script or trigger files",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"script", "trigger"},
	RunE:      runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOut, "out", "o", "", "Write to a file instead of stdout")
}

func runSchema(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	switch args[0] {
	case "script":
		data, err = model.GenerateScriptJSONSchema()
	case "trigger", "triggers":
		data, err = model.GenerateTriggerJSONSchema()
	default:
		return fmt.Errorf("unknown schema type %q: use 'script' or 'trigger'", args[0])
	}
	if err != nil {
		return err
	}

	if schemaOut != "" {
		if err := os.WriteFile(schemaOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Schema written to %s\n", schemaOut)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
