package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-harvest-job/internal/audit"
	"chat-harvest-job/internal/config"
	"chat-harvest-job/internal/logging"
	"chat-harvest-job/internal/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Harvest every due profile once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.openStores(ctx); err != nil {
				return err
			}
			defer a.Close()
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			return a.pass(ctx, r)
		},
	}
}

func newDaemonCmd() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a pass immediately and then on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = a.cfg.Daemon.Schedule
			}
			ctx := cmd.Context()
			if err := a.openStores(ctx); err != nil {
				return err
			}
			defer a.Close()
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			r, err := a.runner()
			if err != nil {
				return err
			}

			tick := func() {
				if err := a.pass(ctx, r); err != nil && ctx.Err() == nil {
					a.log.Error().Err(err).Msg("pass failed")
				}
			}
			logger := cronLogger{logging.Component(a.log, "daemon")}
			c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
			if _, err := c.AddFunc(schedule, tick); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}
			a.log.Info().Str("schedule", schedule).Msg("daemon started")
			tick()
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			a.log.Info().Msg("daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron spec or "@every <duration>" (default from config)`)
	return cmd
}

func newEligibleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eligible",
		Short: "List the profiles that are due now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.openStores(ctx); err != nil {
				return err
			}
			defer a.Close()
			r, err := a.runner()
			if err != nil {
				return err
			}
			names, total, err := r.Eligible(ctx, time.Now())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.out, n)
			}
			a.log.Info().Int("profiles", total).Int("eligible", len(names)).Msg("eligibility checked")
			return nil
		},
	}
}

func newAuditCmd() *cobra.Command {
	var (
		apply  string
		outCSV string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check both tables for schedule drift, oversize transcripts and duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.openStores(ctx); err != nil {
				return err
			}
			defer a.Close()

			au := audit.New(a.profiles, a.conversations, audit.Options{
				Cooldown:        a.cfg.Cooldown,
				TranscriptLimit: a.cfg.TranscriptLimit,
				Apply:           apply,
				Location:        time.Local,
			}, a.log)

			run := func() error {
				rep, err := au.Run(ctx)
				if err != nil {
					return err
				}
				if outCSV != "" {
					w, err := audit.NewCSVWriter(outCSV)
					if err != nil {
						return err
					}
					if err := w.WriteAll(rep); err != nil {
						_ = w.Close()
						return err
					}
					if err := w.Close(); err != nil {
						return err
					}
				}
				for _, f := range rep.Findings {
					a.log.Info().Str("table", f.Table).Str("check", string(f.Check)).Int("row", f.Row).
						Str("subject", f.Subject).Str("detail", f.Detail).Bool("applied", f.Applied).Msg("finding")
				}
				fmt.Fprintln(a.out, rep.String())
				return nil
			}
			if apply == audit.ApplyNone {
				return run()
			}
			return a.withLock(run)
		},
	}
	cmd.Flags().StringVar(&apply, "apply", audit.ApplyNone, "none or safe (truncate oversize transcripts, re-derive Next date)")
	cmd.Flags().StringVar(&outCSV, "out-csv", "", "write findings to this CSV file")
	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		force    bool
		profiles []string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create empty tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = "chat-harvest.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			cfgFile = path

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			a.log.Info().Str("path", path).Msg("config written")
			ctx := cmd.Context()
			if err := a.openStores(ctx); err != nil {
				return err
			}
			defer a.Close()

			pt := store.NewTable(store.ProfileColumns...)
			for _, p := range profiles {
				pt.Append(p, "", "")
			}
			if err := createIfMissing(ctx, a.profiles, pt); err != nil {
				return err
			}
			if err := createIfMissing(ctx, a.conversations, store.NewTable(store.ConversationColumns...)); err != nil {
				return err
			}
			a.log.Info().Str("profiles", a.profiles.Location()).Str("conversations", a.conversations.Location()).Msg("tables ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringSliceVar(&profiles, "profile", nil, "profile name to seed the profile table with (repeatable)")
	return cmd
}

// createIfMissing saves t unless the store already holds a table.
func createIfMissing(ctx context.Context, s store.Store, t *store.Table) error {
	_, err := s.Load(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return s.Save(ctx, t)
	default:
		return err
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
