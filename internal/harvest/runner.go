// Package harvest drives one pass over the due profiles: open each profile's
// messaging client, walk its chat list, reconcile every visible chat against
// the conversation table and stamp the profile's schedule on success.
//
// Profiles run strictly one after another and rows one after another. Errors
// are turned into per-row and per-profile result values; nothing escapes a
// profile except a failure to read the profile table itself.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-harvest-job/internal/adapters"
	"chat-harvest-job/internal/contact"
	"chat-harvest-job/internal/metrics"
	"chat-harvest-job/internal/reldate"
	"chat-harvest-job/internal/schedule"
	"chat-harvest-job/internal/scroll"
	"chat-harvest-job/internal/store"
)

// Config holds the tunables of a Runner.
type Config struct {
	Cooldown        time.Duration
	Scroll          scroll.Params // Observe is set by the runner
	LoadMoreGrace   time.Duration
	TranscriptLimit int
	// Location is used to parse and render schedule stamps; nil = time.Local.
	Location *time.Location
}

// Deps are the collaborators of a Runner. Metrics is optional.
type Deps struct {
	Factory       adapters.Factory
	Profiles      store.Store
	Conversations store.Store
	Dates         *reldate.Normalizer
	Contacts      *contact.Extractor
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep scroll.SleepFunc
}

type Runner struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
}

func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Factory == nil:
		return nil, errors.New("harvest: Factory is required")
	case deps.Profiles == nil:
		return nil, errors.New("harvest: Profiles store is required")
	case deps.Conversations == nil:
		return nil, errors.New("harvest: Conversations store is required")
	}
	if deps.Dates == nil {
		deps.Dates = reldate.New(reldate.Russian)
	}
	if deps.Contacts == nil {
		deps.Contacts = contact.NewExtractor(contact.Selectors{}, "")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = scroll.Sleep
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = schedule.DefaultCooldown
	}
	if cfg.LoadMoreGrace <= 0 {
		cfg.LoadMoreGrace = scroll.DefaultGrace
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	cfg.Scroll.Sleep = deps.Sleep
	return &Runner{cfg: cfg, deps: deps, log: deps.Log.With().Str("component", "harvest").Logger()}, nil
}

// LoadProfiles reads and decodes the profile table. An absent table is
// ErrMissingInput. Undecodable stamps are logged and treated as absent.
func (r *Runner) LoadProfiles(ctx context.Context) ([]schedule.Profile, error) {
	t, err := r.deps.Profiles.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("profile table %s: %w", r.deps.Profiles.Location(), ErrMissingInput)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile table: %w", err)
	}
	ps, issues := store.DecodeProfiles(t, r.cfg.Location)
	for _, is := range issues {
		r.log.Warn().Str("profile", is.Name).Str("column", is.Column).Str("value", is.Value).
			Msg("unparseable schedule stamp; treating as absent")
	}
	return ps, nil
}

// Eligible returns the profiles due at now, in table order.
func (r *Runner) Eligible(ctx context.Context, now time.Time) ([]string, int, error) {
	ps, err := r.LoadProfiles(ctx)
	if err != nil {
		return nil, 0, err
	}
	return schedule.FindEligible(ps, now), len(ps), nil
}

// RunPass harvests every profile eligible at now. The returned error is
// non-nil only when the profile table cannot be read; per-profile failures
// are reported in the summary.
func (r *Runner) RunPass(ctx context.Context, now time.Time) (PassSummary, error) {
	start := r.deps.Now()
	sum := PassSummary{RunID: uuid.NewString()}
	log := r.log.With().Str("run_id", sum.RunID).Logger()

	eligible, total, err := r.Eligible(ctx, now)
	sum.Profiles = total
	if err != nil {
		log.Error().Err(err).Msg("cannot read profiles")
		return sum, err
	}
	sum.Eligible = eligible
	if len(eligible) == 0 {
		log.Info().Int("profiles", total).Msg("no profiles due")
	}

	for _, name := range eligible {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("pass interrupted")
			break
		}
		res := r.RunProfile(ctx, name)
		if res.Status == ProfileDone {
			res.Stamped = r.stamp(ctx, log, name)
		}
		sum.Results = append(sum.Results, res)
		sum.Counts.Merge(res.Counts)
	}

	sum.Duration = r.deps.Now().Sub(start)
	if m := r.deps.Metrics; m != nil {
		m.Passes.Inc()
		m.LastPassUnix.Set(float64(r.deps.Now().Unix()))
	}
	log.Info().
		Int("eligible", len(sum.Eligible)).
		Int("done", sum.Done()).
		Int("skipped", sum.Skipped()).
		Int("failed", sum.Failed()).
		Int("new", sum.Counts.Created).
		Int("updated", sum.Counts.Updated).
		Dur("duration", sum.Duration).
		Msg("pass complete")
	return sum, nil
}

// stamp reloads the profile table, records a successful run for name and
// writes the table back.
func (r *Runner) stamp(ctx context.Context, log zerolog.Logger, name string) bool {
	log = log.With().Str("profile", name).Logger()
	t, err := r.deps.Profiles.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cannot reload profiles for stamping")
		return false
	}
	ps, _ := store.DecodeProfiles(t, r.cfg.Location)
	var p *schedule.Profile
	for i := range ps {
		if ps[i].Name == name {
			p = &ps[i]
			break
		}
	}
	if p == nil {
		log.Warn().Msg("profile not found in table; schedule not updated")
		return false
	}
	stamped := schedule.StampRun(*p, r.deps.Now().In(r.cfg.Location), r.cfg.Cooldown)
	store.StampProfile(t, stamped)
	if err := r.deps.Profiles.Save(ctx, t); err != nil {
		log.Error().Err(err).Msg("cannot save profile stamp")
		return false
	}
	log.Info().Str("next", store.FormatTimestamp(stamped.NextRunAt)).Msg("schedule updated")
	return true
}
