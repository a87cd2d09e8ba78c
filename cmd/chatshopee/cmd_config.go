package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mferraretto/chatshopee22/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

// keyDocs describes every settable key. `config set` rejects keys outside
// this table so typos do not silently grow the config file.
var keyDocs = map[string]string{
	"data_dir":                 "directory for rules, audit CSV and session records",
	"log_level":                "debug, info, warn or error",
	"console.url":              "Duoke chat console URL",
	"console.headless":         "run the browser without a window",
	"console.profile_dir":      "Chrome profile directory, keeps the login cookie",
	"console.nav_timeout_ms":   "page navigation timeout",
	"console.op_timeout_ms":    "per-element operation timeout",
	"scan.max_conversations":   "rows visited per scan cycle",
	"scan.history_depth":       "messages read per conversation",
	"scan.idle_seconds":        "pause between scan cycles",
	"scan.action_delay_ms":     "delay after each row click",
	"scan.needs_reply_filter":  "restrict the list to unanswered conversations",
	"throttle.window_seconds":  "cool-down before the same conversation is answered again",
	"backoff.initial_seconds":  "first delay after a session fault",
	"backoff.multiplier":       "growth factor of the fault delay",
	"backoff.max_seconds":      "ceiling of the fault delay",
	"gemini.api_key":           "Gemini API key (or GEMINI_API_KEY env)",
	"gemini.model":             "Gemini model for reply refinement",
	"gemini.temperature":       "sampling temperature of the refiner",
	"gemini.max_output_tokens": "refined reply length limit",
	"gemini.max_prompt_tokens": "history token budget sent to the refiner",
	"telegram.token":           "Telegram bot token (or TELEGRAM_BOT_TOKEN env)",
	"telegram.chat_id":         "Telegram chat allowed to control the bot",
	"server.addr":              "HTTP control server listen address",
	"windows.start_spec":       "cron spec that starts the engine",
	"windows.stop_spec":        "cron spec that stops the engine",
	"label":                    "Duoke tag applied to answered conversations",
}

// envOnlyKeys never reach the config file: Save blanks them so the
// credentials live in the environment.
var envOnlyKeys = map[string]string{
	"console.email":    "DUOKE_EMAIL",
	"console.password": "DUOKE_PASSWORD",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		values, err := config.ListValues(cfg, true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, k := range keys {
			doc := keyDocs[k]
			if env, ok := envOnlyKeys[k]; ok {
				doc = fmt.Sprintf("set via %s env only", env)
			}
			fmt.Fprintf(w, "%s\t%v\t%s\n", k, values[k], doc)
		}
		return w.Flush()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if env, ok := envOnlyKeys[key]; ok {
			return fmt.Errorf("%s is never stored in the config file, export %s instead", key, env)
		}
		if _, ok := keyDocs[key]; !ok {
			return fmt.Errorf("unknown key %q, see 'chatshopee config list'", key)
		}
		if err := config.SetValue(cfgPath, key, args[1]); err != nil {
			return err
		}
		display := args[1]
		if config.IsSecretKey(key) {
			display = "***"
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, display)
		return nil
	},
}
