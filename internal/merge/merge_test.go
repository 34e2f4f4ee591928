package merge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-harvest-job/internal/reldate"
)

var now = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

func phoneFn(phone string, calls *int) func() string {
	return func() string {
		*calls++
		return phone
	}
}

func opts(v reldate.Vocabulary) Options {
	return Options{TranscriptLimit: DefaultTranscriptLimit, Dates: reldate.New(v)}
}

func TestReconcile_CreateNewConversation(t *testing.T) {
	calls := 0
	out := Reconcile(nil, Observation{Name: "Bob", DateLabel: "today", Chat: "hi"}, now, phoneFn("+7 900 000-00-00", &calls), opts(reldate.English))

	require.Equal(t, Create, out.Action)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Conversation{Name: "Bob", Phone: "+7 900 000-00-00", Date: "15.05.2024", Chat: "hi"}, *out.Record)
}

func TestReconcile_CreateKeepsEmptyPhonePending(t *testing.T) {
	calls := 0
	out := Reconcile(nil, Observation{Name: "Ann", DateLabel: "11.05.2024", Chat: "x"}, now, phoneFn("", &calls), opts(reldate.Russian))
	require.Equal(t, Create, out.Action)
	assert.Equal(t, "", out.Record.Phone)
	assert.Equal(t, "11.05.2024", out.Record.Date)
}

func TestReconcile_SkipUnchangedWithPhone(t *testing.T) {
	existing := &Conversation{Name: "Bob", Phone: "+1", Date: "14.05.2024", Chat: "old"}
	calls := 0
	out := Reconcile(existing, Observation{Name: "Bob", DateLabel: "вчера", Chat: "new text"}, now, phoneFn("+2", &calls), opts(reldate.Russian))

	assert.Equal(t, Skip, out.Action)
	assert.Nil(t, out.Record)
	assert.Zero(t, calls, "phone lookup must not run for a skipped conversation")
	assert.Equal(t, "old", existing.Chat)
}

func TestReconcile_UpdateOnDateChange(t *testing.T) {
	existing := &Conversation{Name: "Bob", Phone: "+1", Date: "10.05.2024", Chat: "old"}
	calls := 0
	out := Reconcile(existing, Observation{Name: "Bob", DateLabel: "сегодня", Chat: "new"}, now, phoneFn("+2", &calls), opts(reldate.Russian))

	require.Equal(t, Update, out.Action)
	assert.Zero(t, calls)
	assert.Equal(t, Conversation{Name: "Bob", Phone: "+1", Date: "15.05.2024", Chat: "new"}, *out.Record)
	assert.Equal(t, "10.05.2024", existing.Date, "existing record is not mutated")
}

func TestReconcile_UpdateFetchesMissingPhoneOnly(t *testing.T) {
	existing := &Conversation{Name: "Bob", Phone: "", Date: "15.05.2024", Chat: "old"}
	calls := 0
	out := Reconcile(existing, Observation{Name: "Bob", DateLabel: "сегодня", Chat: "new"}, now, phoneFn("+2", &calls), opts(reldate.Russian))

	require.Equal(t, Update, out.Action)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Conversation{Name: "Bob", Phone: "+2", Date: "15.05.2024", Chat: "new"}, *out.Record)
}

func TestReconcile_IdempotentSecondPass(t *testing.T) {
	ws := NewWorkingSet(nil)
	obs := Observation{Name: "Bob", DateLabel: "today", Chat: "hi"}
	calls := 0
	o := opts(reldate.English)

	ws.Apply(Reconcile(ws.Lookup("Bob"), obs, now, phoneFn("+1", &calls), o))
	before := ws.Records()

	second := Reconcile(ws.Lookup("Bob"), obs, now, phoneFn("+9", &calls), o)
	ws.Apply(second)

	assert.Equal(t, Skip, second.Action)
	assert.Equal(t, 1, calls)
	assert.Equal(t, before, ws.Records())
}

func TestReconcile_PhoneIsMonotonic(t *testing.T) {
	o := opts(reldate.English)
	rec := &Conversation{Name: "Bob", Phone: "+1", Date: "01.01.2024", Chat: "a"}
	labels := []string{"today", "yesterday", "monday", "01.02.2024", ""}
	for _, label := range labels {
		calls := 0
		out := Reconcile(rec, Observation{Name: "Bob", DateLabel: label, Chat: "z"}, now, phoneFn("", &calls), o)
		assert.Zero(t, calls)
		if out.Record != nil {
			assert.Equal(t, "+1", out.Record.Phone)
			rec = out.Record
		}
	}
}

func TestReconcile_TranscriptCap(t *testing.T) {
	o := opts(reldate.English)
	calls := 0

	long := strings.Repeat("я", 40000)
	out := Reconcile(nil, Observation{Name: "A", Chat: long}, now, phoneFn("", &calls), o)
	assert.True(t, out.Truncated)
	assert.Equal(t, 32767, len([]rune(out.Record.Chat)))

	short := strings.Repeat("a", 100)
	out = Reconcile(nil, Observation{Name: "B", Chat: short}, now, phoneFn("", &calls), o)
	assert.False(t, out.Truncated)
	assert.Equal(t, short, out.Record.Chat)
}

func TestTruncate(t *testing.T) {
	s, cut := Truncate("hello", 0)
	assert.Equal(t, "hello", s)
	assert.False(t, cut)

	s, cut = Truncate("привет", 3)
	assert.Equal(t, "при", s)
	assert.True(t, cut)

	s, cut = Truncate("привет", 6)
	assert.Equal(t, "привет", s)
	assert.False(t, cut)
}

func TestWorkingSet_ApplyKeepsOrderAndCounts(t *testing.T) {
	ws := NewWorkingSet([]Conversation{
		{Name: "A", Phone: "+1", Date: "01.01.2024", Chat: "a"},
		{Name: "B", Phone: "", Date: "01.01.2024", Chat: "b"},
	})

	ws.Apply(Outcome{Action: Update, Record: &Conversation{Name: "B", Phone: "+2", Date: "01.01.2024", Chat: "bb"}})
	ws.Apply(Outcome{Action: Create, Record: &Conversation{Name: "C", Chat: "c"}})
	ws.Apply(Outcome{Action: Skip})

	recs := ws.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{recs[0].Name, recs[1].Name, recs[2].Name})
	assert.Equal(t, "+2", recs[1].Phone)
	assert.Equal(t, 1, ws.Created)
	assert.Equal(t, 1, ws.Updated)
	assert.Equal(t, 1, ws.Skipped)
}

func TestWorkingSet_DuplicateNamesSurvive(t *testing.T) {
	ws := NewWorkingSet([]Conversation{
		{Name: "Mom", Phone: "+1"},
		{Name: "Mom", Phone: "+2"},
	})
	assert.Equal(t, "+1", ws.Lookup("Mom").Phone)
	assert.Equal(t, 2, ws.Len())
}
