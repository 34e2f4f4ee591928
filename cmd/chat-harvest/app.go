package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"chat-harvest-job/internal/adapters"
	"chat-harvest-job/internal/browser"
	"chat-harvest-job/internal/config"
	"chat-harvest-job/internal/contact"
	"chat-harvest-job/internal/harvest"
	"chat-harvest-job/internal/lockfile"
	"chat-harvest-job/internal/logging"
	"chat-harvest-job/internal/metrics"
	"chat-harvest-job/internal/reldate"
	"chat-harvest-job/internal/scroll"
	"chat-harvest-job/internal/store"
)

// app is the wiring shared by the subcommands.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	out     io.Writer
	metrics *metrics.Metrics

	profiles      store.Store
	conversations store.Store
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:     cfgFile,
		Flags:    cmd.Flags(),
		FlagKeys: flagKeys,
	})
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Out: cmd.ErrOrStderr()})
	return &app{cfg: cfg, log: log, out: cmd.OutOrStdout(), metrics: metrics.New()}, nil
}

// openStores opens both tables. A nil error means both are open.
func (a *app) openStores(ctx context.Context) error {
	opts := store.Options{PGSchema: a.cfg.PG.Schema, PGMaxConns: a.cfg.PG.MaxConns}
	p, err := store.Open(ctx, a.cfg.ProfilesDB, a.cfg.ProfilesSheet, opts)
	if err != nil {
		return fmt.Errorf("open profile table: %w", err)
	}
	c, err := store.Open(ctx, a.cfg.ConversationsDB, a.cfg.ConversationsSheet, opts)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("open conversation table: %w", err)
	}
	a.profiles, a.conversations = p, c
	return nil
}

func (a *app) Close() {
	for _, s := range []store.Store{a.profiles, a.conversations} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			a.log.Warn().Err(err).Str("table", s.Location()).Msg("close table")
		}
	}
}

func (a *app) factory() (adapters.Factory, error) {
	switch a.cfg.Adapter {
	case "mock":
		return adapters.NewMockFactory(adapters.MockOptions{Chats: a.cfg.Mock.Chats, Seed: a.cfg.Mock.Seed}), nil
	case "web":
		l := &browser.ChromeLauncher{
			ProfileRoot:  a.cfg.ProfileRoot,
			Headless:     a.cfg.Headless,
			ExecPath:     a.cfg.ChromePath,
			ClickTimeout: a.cfg.ClickTimeout,
		}
		return adapters.NewWebFactory(l, adapters.WebOptions{
			TargetURL:    a.cfg.TargetURL,
			Selectors:    a.cfg.Selectors,
			OpenTimeout:  a.cfg.OpenTimeout,
			ContactGrace: a.cfg.Contact.Grace,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q", a.cfg.Adapter)
	}
}

func (a *app) runner() (*harvest.Runner, error) {
	f, err := a.factory()
	if err != nil {
		return nil, err
	}
	return harvest.New(harvest.Config{
		Cooldown: a.cfg.Cooldown,
		Scroll: scroll.Params{
			Step:      a.cfg.Scroll.Step,
			Settle:    a.cfg.Scroll.Settle,
			Threshold: a.cfg.Scroll.Threshold,
		},
		LoadMoreGrace:   a.cfg.Scroll.LoadMoreGrace,
		TranscriptLimit: a.cfg.TranscriptLimit,
		Location:        time.Local,
	}, harvest.Deps{
		Factory:       f,
		Profiles:      a.profiles,
		Conversations: a.conversations,
		Dates:         reldate.New(reldate.ByLocale(a.cfg.DateLocale)),
		Contacts:      contact.NewExtractor(a.cfg.Contact.Selectors(), a.cfg.Contact.OfficialSentinel),
		Metrics:       a.metrics,
		Log:           a.log,
	})
}

// lockPath puts the writer lock next to a file-backed conversation table;
// SQL-backed tables share one lock in the temp dir.
func (a *app) lockPath() string {
	loc := strings.TrimPrefix(a.cfg.ConversationsDB, "sqlite:")
	lower := strings.ToLower(loc)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return filepath.Join(os.TempDir(), "chat-harvest.lock")
	}
	return loc + ".lock"
}

// withLock runs fn while holding the writer lock, refreshing it in the
// background.
func (a *app) withLock(fn func() error) error {
	l, err := lockfile.Acquire(a.lockPath(), a.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lockfile.ErrHeld) {
			a.log.Warn().Err(err).Msg("another harvest is writing; not starting")
		}
		return err
	}
	l.Heartbeat(lockfile.DefaultHeartbeat)
	defer func() {
		if err := l.Release(); err != nil {
			a.log.Warn().Err(err).Str("lock", l.Path()).Msg("release lock")
		}
	}()
	return fn()
}

// pass runs one harvest pass under the lock and prints the summary line.
func (a *app) pass(ctx context.Context, r *harvest.Runner) error {
	return a.withLock(func() error {
		sum, err := r.RunPass(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, sum.String())
		return nil
	})
}
