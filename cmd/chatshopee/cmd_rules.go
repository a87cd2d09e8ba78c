package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/state"
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesRemoveCmd, rulesEnableCmd, rulesDisableCmd)

	rulesAddCmd.Flags().String("id", "", "rule id (required)")
	rulesAddCmd.Flags().StringSlice("contains", nil, "match when any of these substrings appears")
	rulesAddCmd.Flags().StringSlice("all", nil, "match only when all of these substrings appear")
	rulesAddCmd.Flags().StringSlice("regex", nil, "match when any of these patterns matches")
	rulesAddCmd.Flags().String("action", "", "action on match: skip or reply")
	rulesAddCmd.Flags().String("reply", "", "reply text for the reply action")
	_ = rulesAddCmd.MarkFlagRequired("id")
}

func ruleStore() *state.RuleStore {
	cfg := loadConfig()
	return state.NewRuleStore(filepath.Join(cfg.DataDir, "rules.json"))
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage reply override rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new rule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		contains, _ := cmd.Flags().GetStringSlice("contains")
		all, _ := cmd.Flags().GetStringSlice("all")
		regex, _ := cmd.Flags().GetStringSlice("regex")
		action, _ := cmd.Flags().GetString("action")
		reply, _ := cmd.Flags().GetString("reply")

		if action == "" && reply == "" {
			return fmt.Errorf("a rule needs --action skip or a --reply text")
		}

		rule := decide.Rule{
			ID: id,
			Match: decide.Match{
				AnyContains: contains,
				AllContains: all,
				AnyRegex:    regex,
			},
			Action: action,
			Reply:  reply,
		}
		if err := ruleStore().Add(rule); err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Rule %q added.\n", id)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := ruleStore().List()
		if err != nil {
			return fmt.Errorf("list rules: %w", err)
		}

		if len(rules) == 0 {
			fmt.Println("No rules configured.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTIVE\tACTION\tMATCH\tREPLY")
		for _, r := range rules {
			action := r.Action
			if action == "" {
				action = "reply"
			}
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\n",
				r.ID,
				r.IsActive(),
				action,
				summarizeMatch(r.Match),
				truncate(r.Reply, 40),
			)
		}
		return w.Flush()
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ruleStore().Remove(args[0]); err != nil {
			return fmt.Errorf("remove rule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Rule %q removed.\n", args[0])
		return nil
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ruleStore().SetActive(args[0], true); err != nil {
			return fmt.Errorf("enable rule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Rule %q enabled.\n", args[0])
		return nil
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ruleStore().SetActive(args[0], false); err != nil {
			return fmt.Errorf("disable rule: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Rule %q disabled.\n", args[0])
		return nil
	},
}

func summarizeMatch(m decide.Match) string {
	var parts []string
	if len(m.AnyContains) > 0 {
		parts = append(parts, "any("+strings.Join(m.AnyContains, ",")+")")
	}
	if len(m.AllContains) > 0 {
		parts = append(parts, "all("+strings.Join(m.AllContains, ",")+")")
	}
	if len(m.AnyRegex) > 0 {
		parts = append(parts, "regex("+strings.Join(m.AnyRegex, ",")+")")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
