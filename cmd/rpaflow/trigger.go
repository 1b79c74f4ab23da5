package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

var (
	triggerName   string
	triggerAt     string
	triggerHotkey string
	triggerOff    bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Manage time and hotkey triggers",
}

var triggerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List triggers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openScheduler(cmd)
		if err != nil {
			return err
		}
		console.TriggerTable(cmd.OutOrStdout(), s.Triggers())
		return nil
	},
}

var triggerAddCmd = &cobra.Command{
	Use:   "add [script]",
	Short: "Add a trigger: --at HH:MM or --hotkey <combo>",
	Args:  cobra.ExactArgs(1),
	RunE:  runTriggerAdd,
}

var triggerRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a trigger by id or unique id prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openScheduler(cmd)
		if err != nil {
			return err
		}
		id, err := resolveTriggerID(s.Triggers(), args[0])
		if err != nil {
			return err
		}
		if err := s.Remove(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
		return nil
	},
}

var triggerEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable a trigger",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTriggerEnabled(cmd, args[0], true) },
}

var triggerDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable a trigger",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTriggerEnabled(cmd, args[0], false) },
}

func init() {
	triggerAddCmd.Flags().StringVar(&triggerName, "name", "", "Display name")
	triggerAddCmd.Flags().StringVar(&triggerAt, "at", "", "Fire daily at HH:MM")
	triggerAddCmd.Flags().StringVar(&triggerHotkey, "hotkey", "", "Fire on a key combo such as <ctrl>+<alt>+r")
	triggerAddCmd.Flags().BoolVar(&triggerOff, "disabled", false, "Add the trigger disabled")
	triggerAddCmd.MarkFlagsMutuallyExclusive("at", "hotkey")
	triggerAddCmd.MarkFlagsOneRequired("at", "hotkey")

	triggerCmd.AddCommand(triggerListCmd)
	triggerCmd.AddCommand(triggerAddCmd)
	triggerCmd.AddCommand(triggerRemoveCmd)
	triggerCmd.AddCommand(triggerEnableCmd)
	triggerCmd.AddCommand(triggerDisableCmd)
}

// openScheduler loads the trigger file without starting the poller or the
// hotkey listener.
func openScheduler(cmd *cobra.Command) (*trigger.Scheduler, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s := trigger.New(cfg.TriggersFile, trigger.WithLogger(newLogger(cfg)))
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func runTriggerAdd(cmd *cobra.Command, args []string) error {
	s, err := openScheduler(cmd)
	if err != nil {
		return err
	}
	name := triggerName
	if name == "" {
		name = args[0]
	}

	var t model.Trigger
	if triggerAt != "" {
		t = model.NewTimeTrigger(name, args[0], triggerAt)
	} else {
		t = model.NewHotkeyTrigger(name, args[0], triggerHotkey)
	}
	t.Enabled = !triggerOff

	added, err := s.Add(t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s trigger %s\n", added.Type, added.ID)
	return nil
}

func setTriggerEnabled(cmd *cobra.Command, ref string, enabled bool) error {
	s, err := openScheduler(cmd)
	if err != nil {
		return err
	}
	id, err := resolveTriggerID(s.Triggers(), ref)
	if err != nil {
		return err
	}
	if err := s.SetEnabled(id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, id)
	return nil
}

// resolveTriggerID accepts a full id or a prefix matching exactly one
// trigger, such as the short id shown by "trigger list".
func resolveTriggerID(triggers []model.Trigger, ref string) (string, error) {
	var matches []string
	for _, t := range triggers {
		if t.ID == ref {
			return t.ID, nil
		}
		if ref != "" && strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", trigger.ErrNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("trigger id %q is ambiguous (%d matches)", ref, len(matches))
	}
}
