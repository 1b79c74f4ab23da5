package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect run traces",
}

var traceShowCmd = &cobra.Command{
	Use:   "show <run-id|trace.jsonl>",
	Short: "Summarize one run trace",
	Long:  "Summarize a run trace step by step. The argument is a trace file, or a run id (or unique prefix) looked up in trace_dir.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceShow,
}

var traceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the traces in trace_dir, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTraceList,
}

func init() {
	traceCmd.AddCommand(traceShowCmd)
	traceCmd.AddCommand(traceListCmd)
}

func runTraceShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := resolveTracePath(cfg.TraceDir, args[0])
	if err != nil {
		return err
	}
	events, err := trace.ReadFile(path)
	if err != nil {
		return err
	}
	console.TraceSummary(cmd.OutOrStdout(), trace.Summarize(events))
	return nil
}

func runTraceList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(cfg.TraceDir, "*.jsonl"))
	if err != nil {
		return err
	}

	var summaries []*trace.Summary
	for _, f := range files {
		events, err := trace.ReadFile(f)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", f, err)
			continue
		}
		summaries = append(summaries, trace.Summarize(events))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Started.After(summaries[j].Started)
	})

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintf(w, "No traces in %s\n", cfg.TraceDir)
		return nil
	}
	for _, s := range summaries {
		status := s.Status
		if status == "" {
			status = "incomplete"
		}
		fmt.Fprintf(w, "%s  %-19s  %-10s  %8s  %s\n",
			s.RunID, s.Started.Local().Format("2006-01-02 15:04:05"), status,
			s.Duration.Round(time.Millisecond), s.Script)
	}
	return nil
}

// resolveTracePath accepts a trace file, a run id or a unique run id prefix.
func resolveTracePath(dir, ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}
	exact := trace.FilePath(dir, ref)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, ref+"*.jsonl"))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no trace for %q in %s", ref, dir)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = strings.TrimSuffix(filepath.Base(m), ".jsonl")
		}
		return "", fmt.Errorf("run id %q is ambiguous: %s", ref, strings.Join(names, ", "))
	}
}
