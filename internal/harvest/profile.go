package harvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"chat-harvest-job/internal/adapters"
	"chat-harvest-job/internal/contact"
	"chat-harvest-job/internal/merge"
	"chat-harvest-job/internal/scroll"
	"chat-harvest-job/internal/store"
)

// RunProfile harvests one profile. The client is always closed. The
// conversation table is written once, after the row loop.
func (r *Runner) RunProfile(ctx context.Context, name string) (res ProfileResult) {
	start := r.deps.Now()
	res.Profile = name
	log := r.log.With().Str("profile", name).Logger()
	log.Info().Str("adapter", r.deps.Factory.Name()).Msg("starting profile")

	defer func() {
		res.Duration = r.deps.Now().Sub(start)
		if m := r.deps.Metrics; m != nil {
			m.Profiles.WithLabelValues(res.Status.String()).Inc()
			m.ProfileDuration.Observe(res.Duration.Seconds())
		}
		ev := log.Info()
		if res.Status == ProfileFailed {
			ev = log.Error().Err(res.Err)
		} else if res.Status == ProfileSkipped {
			ev = log.Warn().Err(res.Err)
		}
		ev.Str("status", res.Status.String()).
			Int("total", res.Rows).
			Int("new", res.Counts.Created).
			Int("updated", res.Counts.Updated).
			Msg("profile finished")
	}()

	fail := func(err error) ProfileResult {
		res.Status = ProfileFailed
		res.Err = fmt.Errorf("%w: %w", ErrProfile, err)
		return res
	}

	client, err := r.deps.Factory.Open(ctx, name)
	if err != nil {
		return fail(fmt.Errorf("launch: %w", err))
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("close client")
		}
	}()

	if err := client.Open(ctx); err != nil {
		return fail(fmt.Errorf("open client: %w", err))
	}

	rows, err := client.Rows(ctx)
	if errors.Is(err, adapters.ErrNoGeometry) {
		res.Status = ProfileSkipped
		res.Err = fmt.Errorf("%w: %w", ErrMissingInput, err)
		return res
	}
	if err != nil {
		return fail(fmt.Errorf("enumerate rows: %w", err))
	}
	res.Rows = len(rows)
	log.Info().Int("rows", len(rows)).Msg("chat list ready")

	ws, err := r.loadWorkingSet(ctx, log)
	if err != nil {
		return fail(err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		rr := r.processRow(ctx, log, client, ws, row)
		res.Counts.Add(rr.Status)
		if m := r.deps.Metrics; m != nil {
			m.Rows.WithLabelValues(rr.Status.String()).Inc()
		}
		if rr.Status == RowFailed {
			log.Warn().Err(rr.Err).Int("row", rr.Index).Str("chat", rr.Name).Msg("row failed")
		}
	}
	// a row interrupted by cancellation must not be persisted as a partial pass
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := r.deps.Conversations.Save(ctx, store.EncodeConversations(ws.Records())); err != nil {
		return fail(fmt.Errorf("save conversations: %w", err))
	}
	log.Info().Int("records", ws.Len()).Str("table", r.deps.Conversations.Location()).Msg("conversations saved")
	res.Status = ProfileDone
	return res
}

// loadWorkingSet reads the conversation table; an absent table starts empty.
func (r *Runner) loadWorkingSet(ctx context.Context, log zerolog.Logger) (*merge.WorkingSet, error) {
	t, err := r.deps.Conversations.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		log.Info().Str("table", r.deps.Conversations.Location()).Msg("conversation table not found; creating a new one")
		return merge.NewWorkingSet(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return merge.NewWorkingSet(store.DecodeConversations(t)), nil
}

func (r *Runner) processRow(ctx context.Context, log zerolog.Logger, c adapters.ChatClient, ws *merge.WorkingSet, row adapters.Row) RowResult {
	rr := RowResult{Index: row.Index}
	failed := func(step string, err error) RowResult {
		rr.Status = RowFailed
		rr.Err = fmt.Errorf("%w: %s: %w", ErrTransientUI, step, err)
		return rr
	}

	visible, err := c.RowVisible(ctx, row)
	if err != nil {
		return failed("visibility", err)
	}
	if !visible {
		rr.Status = RowInvisible
		return rr
	}

	label, err := c.RowLabel(ctx, row)
	if err != nil {
		return failed("label", err)
	}
	if label.Name == "" {
		return failed("label", errors.New("empty chat name"))
	}
	rr.Name = label.Name
	now := r.deps.Now().In(r.cfg.Location)
	existing := ws.Lookup(label.Name)
	log = log.With().Str("chat", label.Name).Logger()
	kind := "new chat"
	if existing != nil {
		kind = "known chat"
	}
	log.Info().Str("date", r.deps.Dates.Normalize(label.Date, now)).Msgf("processing %s", kind)

	if err := c.OpenRow(ctx, row); err != nil {
		return failed("open chat", err)
	}

	samples := 0
	params := r.cfg.Scroll
	params.Observe = func(s scroll.Sample) {
		samples++
		log.Debug().Int("sample", s.N).Float64("offset", s.Offset).Int("stable", s.Stable).Msg("scrolling up")
	}
	rounds, err := scroll.Settle(ctx, c.MessagePane(), loggedAffordance{c.LoadMore(), log}, params, r.cfg.LoadMoreGrace)
	if m := r.deps.Metrics; m != nil {
		m.ConvergeSamples.Observe(float64(samples))
		m.PaginationRound.Add(float64(rounds))
	}
	if err != nil {
		return failed("load history", err)
	}

	transcript, err := c.Transcript(ctx)
	if err != nil {
		return failed("transcript", err)
	}
	if n, err := c.MessageCount(ctx); err == nil {
		log.Info().Int("messages", n).Int("load_more", rounds).Msg("history loaded")
	}

	fetchPhone := func() string { return r.lookupContact(ctx, log, c) }
	out := merge.Reconcile(existing, merge.Observation{
		Name:      label.Name,
		DateLabel: label.Date,
		Chat:      transcript,
	}, now, fetchPhone, merge.Options{TranscriptLimit: r.cfg.TranscriptLimit, Dates: r.deps.Dates})
	ws.Apply(out)

	if out.Truncated {
		rr.Truncated = true
		log.Warn().Int("limit", r.cfg.TranscriptLimit).Msg("transcript exceeds limit; truncated")
		if m := r.deps.Metrics; m != nil {
			m.Truncations.Inc()
		}
	}
	switch out.Action {
	case merge.Create:
		rr.Status = RowCreated
		log.Info().Msg("new chat added")
	case merge.Update:
		rr.Status = RowUpdated
		log.Info().Msg("chat updated")
	default:
		rr.Status = RowSkipped
	}
	return rr
}

// lookupContact opens the contact panel and classifies it. Any failure means
// "unknown", so the phone stays pending for the next harvest.
func (r *Runner) lookupContact(ctx context.Context, log zerolog.Logger, c adapters.ChatClient) string {
	html, ok, err := c.ContactPanel(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("contact panel failed")
		return ""
	}
	if !ok {
		log.Info().Msg("contact panel not available")
		return ""
	}
	v, kind := r.deps.Contacts.Classify(html)
	if m := r.deps.Metrics; m != nil {
		m.PhoneLookups.WithLabelValues(kind.String()).Inc()
	}
	switch kind {
	case contact.Official:
		log.Info().Msg("official account; phone lookup skipped")
	case contact.Phone:
		log.Info().Str("phone", v).Msg("phone extracted")
	default:
		log.Info().Msg("phone not found")
	}
	return v
}

// loggedAffordance reports load-more activations on the operator log.
type loggedAffordance struct {
	scroll.Affordance
	log zerolog.Logger
}

func (a loggedAffordance) Activate(ctx context.Context) error {
	a.log.Info().Msg("load-more shown; requesting older messages")
	return a.Affordance.Activate(ctx)
}
