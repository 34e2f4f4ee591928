// Command chat-harvest copies conversations out of per-profile messaging
// sessions into a conversation table, on a per-profile cooldown schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"chat-harvest-job/internal/config"
)

var cfgFile string

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"profiles":      "profiles_db",
	"conversations": "conversations_db",
	"profile-root":  "profile_root",
	"target-url":    "target_url",
	"adapter":       "adapter",
	"headless":      "headless",
	"locale":        "date_locale",
	"cooldown":      "cooldown",
	"metrics-addr":  "metrics_addr",
	"log-level":     "log.level",
	"log-json":      "log.json",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chat-harvest",
		Short: "Harvest chat transcripts and contact phones from messaging profiles",
		Long: `chat-harvest opens every due profile's messaging session, walks its chat
list, loads each chat's full history and merges it into the conversation
table. A profile is due again two hours (the cooldown) after its last
successful harvest.

Configuration is read from defaults, ./chat-harvest.yaml (or --config),
HARVEST_* environment variables and flags, in that order. The legacy
PROFILES_DB, EXCEL_FILE and CHROME_PROFILE_PATH variables are honoured.

Configuration keys (env: HARVEST_ + upper-cased key, dots as underscores):
  ` + strings.Join(config.Keys(), "\n  "),
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./chat-harvest.yaml if present)")
	pf.String("profiles", "", "profile table location (.xlsx, .csv, .db, sqlite:, postgres://)")
	pf.String("conversations", "", "conversation table location")
	pf.String("profile-root", "", "directory holding one browser profile per name")
	pf.String("target-url", "", "messaging web client URL")
	pf.String("adapter", "", "client adapter: web or mock")
	pf.Bool("headless", false, "run the browser headless")
	pf.String("locale", "", "chat-list date vocabulary: ru or en")
	pf.Duration("cooldown", 0, "interval between harvests of one profile")
	pf.String("metrics-addr", "", "serve /metrics and pprof on this address (empty = off)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.Bool("log-json", false, "log JSON lines instead of console output")

	root.AddCommand(
		newRunCmd(),
		newDaemonCmd(),
		newEligibleCmd(),
		newAuditCmd(),
		newInitCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
