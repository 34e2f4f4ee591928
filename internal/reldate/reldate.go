// Package reldate maps the relative day labels shown in the chat list
// ("yesterday", "today", weekday names) to absolute calendar dates.
package reldate

import (
	"strings"
	"time"
)

// Layout is the absolute date format written to the conversation table.
const Layout = "02.01.2006"

// Vocabulary is the set of relative-day words of one locale.
// Weekdays is indexed by time.Weekday (Sunday = 0).
type Vocabulary struct {
	Yesterday string
	Today     string
	Weekdays  [7]string
}

var Russian = Vocabulary{
	Yesterday: "вчера",
	Today:     "сегодня",
	Weekdays: [7]string{
		"воскресенье", "понедельник", "вторник", "среда", "четверг", "пятница", "суббота",
	},
}

var English = Vocabulary{
	Yesterday: "yesterday",
	Today:     "today",
	Weekdays: [7]string{
		"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday",
	},
}

// ByLocale returns the built-in vocabulary for a locale code, falling back to Russian.
func ByLocale(code string) Vocabulary {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "en", "english":
		return English
	default:
		return Russian
	}
}

// Normalizer resolves labels of a single vocabulary.
type Normalizer struct {
	words map[string]int // label -> day offset marker, see resolve
}

const (
	markYesterday = -1
	markToday     = -2
)

func New(v Vocabulary) *Normalizer {
	n := &Normalizer{words: make(map[string]int, 9)}
	n.words[strings.ToLower(v.Yesterday)] = markYesterday
	n.words[strings.ToLower(v.Today)] = markToday
	for wd, name := range v.Weekdays {
		n.words[strings.ToLower(name)] = wd
	}
	return n
}

// Normalize returns the absolute date for label relative to now. Labels outside
// the vocabulary are returned unchanged.
//
// Weekday names resolve inside the Sunday-started week that contains now, so
// the current weekday yields today and a later weekday yields a day later this
// week. Chat lists only label past days, so a forward date is never produced
// in practice; the rule is kept for parity with the client's own week math.
func (n *Normalizer) Normalize(label string, now time.Time) string {
	key := strings.ToLower(strings.TrimSpace(label))
	mark, ok := n.words[key]
	if !ok || key == "" {
		return label
	}
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch mark {
	case markYesterday:
		day = day.AddDate(0, 0, -1)
	case markToday:
	default:
		day = day.AddDate(0, 0, mark-int(now.Weekday()))
	}
	return day.Format(Layout)
}
