package scroll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqRegion replays offsets; once exhausted it repeats the last one.
type seqRegion struct {
	offsets []float64
	samples int
	scrolls []float64
	err     error
}

func (r *seqRegion) ScrollOffset(ctx context.Context) (float64, error) {
	if r.err != nil {
		return 0, r.err
	}
	i := r.samples
	if i >= len(r.offsets) {
		i = len(r.offsets) - 1
	}
	r.samples++
	return r.offsets[i], nil
}

func (r *seqRegion) ScrollBy(ctx context.Context, delta float64) error {
	r.scrolls = append(r.scrolls, delta)
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestConverge_TerminatesAfterKPlusThreshold(t *testing.T) {
	tests := []struct {
		name    string
		offsets []float64
		k       int
	}{
		{"constant from start", []float64{0}, 1},
		{"steady climb", []float64{2000, 1500, 1000, 500, 0}, 5},
		{"bursty arrival", []float64{900, 400, 400, 1300, 800, 800, 300, 0}, 8},
		{"two equal then change", []float64{10, 10, 5}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &seqRegion{offsets: tt.offsets}
			got, err := Converge(context.Background(), r, Params{Step: 500, Threshold: 3, Sleep: noSleep})
			require.NoError(t, err)
			assert.Equal(t, tt.k+3, r.samples)
			assert.Equal(t, tt.offsets[len(tt.offsets)-1], got)
		})
	}
}

func TestConverge_ScrollsBackwardsAfterEverySample(t *testing.T) {
	r := &seqRegion{offsets: []float64{300, 0}}
	var slept []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	_, err := Converge(context.Background(), r, Params{Step: 250, Settle: 40 * time.Millisecond, Sleep: sleep})
	require.NoError(t, err)

	require.Len(t, r.scrolls, r.samples)
	for _, d := range r.scrolls {
		assert.Equal(t, -250.0, d)
	}
	require.Len(t, slept, r.samples)
	assert.Equal(t, 40*time.Millisecond, slept[0])
}

func TestConverge_DefaultsAndObserver(t *testing.T) {
	r := &seqRegion{offsets: []float64{100, 0}}
	var seen []Sample
	_, err := Converge(context.Background(), r, Params{Sleep: noSleep, Observe: func(s Sample) { seen = append(seen, s) }})
	require.NoError(t, err)

	assert.Equal(t, -DefaultStep, r.scrolls[0])
	require.Len(t, seen, 5)
	assert.Equal(t, Sample{N: 1, Offset: 100, Stable: 0}, seen[0])
	assert.Equal(t, Sample{N: 5, Offset: 0, Stable: 3}, seen[4])
}

func TestConverge_RegionError(t *testing.T) {
	boom := errors.New("detached")
	_, err := Converge(context.Background(), &seqRegion{err: boom}, Params{Sleep: noSleep})
	assert.ErrorIs(t, err, boom)
}

func TestConverge_StopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &seqRegion{offsets: []float64{1, 2, 3}}
	_, err := Converge(ctx, r, Params{Settle: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.samples)
}

type fakeAffordance struct {
	remaining   int
	activations int
	probeErr    error
}

func (a *fakeAffordance) Present(context.Context) (bool, error) {
	if a.probeErr != nil {
		return false, a.probeErr
	}
	return a.remaining > 0, nil
}

func (a *fakeAffordance) Activate(context.Context) error {
	a.activations++
	a.remaining--
	return nil
}

func TestPaginate_LoopsUntilAffordanceAbsent(t *testing.T) {
	aff := &fakeAffordance{remaining: 3}
	converges := 0
	var graces []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		graces = append(graces, d)
		return nil
	}

	rounds, err := Paginate(context.Background(), aff, 3*time.Second, func(context.Context) error {
		converges++
		return nil
	}, sleep)
	require.NoError(t, err)
	assert.Equal(t, 3, rounds)
	assert.Equal(t, 3, aff.activations)
	assert.Equal(t, 3, converges)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, graces)
}

func TestPaginate_AbsentImmediately(t *testing.T) {
	aff := &fakeAffordance{}
	rounds, err := Paginate(context.Background(), aff, time.Second, func(context.Context) error {
		t.Fatal("converge must not run")
		return nil
	}, noSleep)
	require.NoError(t, err)
	assert.Zero(t, rounds)
}

func TestPaginate_ProbeError(t *testing.T) {
	boom := errors.New("stale element")
	_, err := Paginate(context.Background(), &fakeAffordance{probeErr: boom}, 0, nil, noSleep)
	assert.ErrorIs(t, err, boom)
}

func TestSettle_ConvergesBeforeAndAfterEachRound(t *testing.T) {
	r := &seqRegion{offsets: []float64{0}}
	aff := &fakeAffordance{remaining: 2}
	rounds, err := Settle(context.Background(), r, aff, Params{Sleep: noSleep}, DefaultGrace)
	require.NoError(t, err)
	assert.Equal(t, 2, rounds)
	// every run starts from the sentinel, so a constant offset costs 4 samples per run
	assert.Equal(t, 4*3, r.samples)
}
