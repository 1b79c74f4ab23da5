package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/diagram"
	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

var (
	diagramFormat   string
	diagramDepth    int
	diagramNoExpand bool
)

var diagramCmd = &cobra.Command{
	Use:   "diagram <script>",
	Short: "Draw a script as a Mermaid flowchart or ASCII boxes",
	Long:  "Draw a script's steps in order. Sub-flows with a literal sub_path and ai_smart_step prompts are expanded inline unless --no-expand is given.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagram,
}

func init() {
	diagramCmd.Flags().StringVarP(&diagramFormat, "format", "f", string(diagram.FormatMermaid), "Output format: mermaid or ascii")
	diagramCmd.Flags().IntVar(&diagramDepth, "depth", 3, "Maximum sub-flow expansion depth")
	diagramCmd.Flags().BoolVar(&diagramNoExpand, "no-expand", false, "Draw only the top-level steps")
}

func runDiagram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	loader := engine.FileLoader{BaseDir: cfg.ScriptsDir}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		path = loader.Resolve(path)
	}
	script, err := model.LoadScriptFile(path)
	if err != nil {
		return err
	}

	opts := diagram.Options{MaxDepth: diagramDepth}
	if !diagramNoExpand {
		opts.Loader = loader
		opts.Compiler = intent.New(nil)
	}
	out, err := diagram.Generate(script, diagram.Format(diagramFormat), opts)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
