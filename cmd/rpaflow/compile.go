package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

var (
	compileOut  string
	compileName string
	compileJSON bool
)

var compileCmd = &cobra.Command{
	Use:   "compile [instruction]",
	Short: "Compile a natural-language instruction into action steps",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOut, "out", "o", "", "Save the steps as a script file")
	compileCmd.Flags().StringVar(&compileName, "name", "compiled", "Script name used with --out")
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the steps as JSON")
}

func runCompile(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	steps := intent.Compile(prompt)
	if len(steps) == 0 {
		return fmt.Errorf("no steps matched %q", prompt)
	}

	script := model.NewScript(compileName)
	script.Steps = steps

	switch {
	case compileJSON:
		data, err := json.MarshalIndent(steps, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	default:
		console.StepTree(cmd.OutOrStdout(), script)
	}

	if compileOut != "" {
		if err := model.SaveScriptFile(compileOut, script); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Script written to %s\n", compileOut)
	}
	return nil
}
