package reldate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Yesterday(t *testing.T) {
	n := New(Russian)
	for _, now := range []time.Time{
		time.Date(2024, 3, 1, 0, 5, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local),
	} {
		want := now.AddDate(0, 0, -1).Format(Layout)
		assert.Equal(t, want, n.Normalize("ВЧЕРА", now))
		assert.Equal(t, want, n.Normalize("вчера", now))
		assert.Equal(t, want, n.Normalize("Вчера", now))
	}
}

func TestNormalize_Today(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "15.05.2024", New(Russian).Normalize("Сегодня", now))
	assert.Equal(t, "15.05.2024", New(English).Normalize("today", now))
}

func TestNormalize_Weekdays(t *testing.T) {
	// Wednesday; its Sunday-started week runs 12.05 .. 18.05.
	now := time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC)
	n := New(Russian)

	tests := []struct {
		label string
		want  string
	}{
		{"воскресенье", "12.05.2024"},
		{"понедельник", "13.05.2024"},
		{"вторник", "14.05.2024"},
		{"среда", "15.05.2024"},
		{"четверг", "16.05.2024"},
		{"пятница", "17.05.2024"},
		{"суббота", "18.05.2024"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.label, now))
		})
	}
}

func TestNormalize_CurrentWeekdayIsToday(t *testing.T) {
	n := New(English)
	start := time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		now := start.AddDate(0, 0, i)
		label := English.Weekdays[now.Weekday()]
		assert.Equal(t, now.Format(Layout), n.Normalize(label, now), label)
	}
}

func TestNormalize_SundayReferenceLooksForward(t *testing.T) {
	sunday := time.Date(2024, 5, 12, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "13.05.2024", New(English).Normalize("Monday", sunday))
}

func TestNormalize_LaterWeekdayStaysInCurrentWeek(t *testing.T) {
	wednesday := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "16.05.2024", New(English).Normalize("thursday", wednesday))
	assert.Equal(t, "13.05.2024", New(English).Normalize("monday", wednesday))
}

func TestNormalize_PassThrough(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC)
	n := New(Russian)
	assert.Equal(t, "11.04.2024", n.Normalize("11.04.2024", now))
	assert.Equal(t, "", n.Normalize("", now))
	assert.Equal(t, "today", n.Normalize("today", now))
}

func TestByLocale(t *testing.T) {
	assert.Equal(t, English, ByLocale("EN"))
	assert.Equal(t, Russian, ByLocale("ru"))
	assert.Equal(t, Russian, ByLocale(""))
}
