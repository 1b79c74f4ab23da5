package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/validate"
)

var validateTriggers bool

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate script files, or a trigger file with --triggers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateTriggers, "triggers", false, "Validate trigger files instead of scripts")
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		var errs []*validate.ValidationError
		var summary string
		if validateTriggers {
			triggers, e := validate.ValidateTriggersFile(path)
			errs = e
			summary = fmt.Sprintf("%s is valid (%d triggers)", filepath.Base(path), len(triggers))
		} else {
			s, e := validate.ValidateScriptFile(path)
			errs = e
			if s != nil {
				summary = fmt.Sprintf("%s is valid (%d steps)", s.Name, len(s.Steps))
			}
		}

		printValidationWarnings(cmd, errs)
		if len(validate.Errors(errs)) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s:\n", path)
			printValidationErrors(cmd, errs)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", summary)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
	}
	return nil
}
