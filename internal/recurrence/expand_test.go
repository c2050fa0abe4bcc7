package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2kPi/OpenFamily/internal/domain"
)

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(i int) *int { return &i }

func TestExpandNonRecurring(t *testing.T) {
	entity := Entity{AnchorDate: "2025-06-10", AnchorTime: "14:30"}

	// The single occurrence comes back even when the window is elsewhere;
	// window membership is the caller's concern.
	occs, err := Expand(entity, date("2030-01-01"), date("2030-01-31"))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, Occurrence{Date: "2025-06-10", Time: "14:30"}, occs[0])
}

func TestExpandDaily(t *testing.T) {
	entity := Entity{
		AnchorDate: "2025-03-01",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyDaily},
	}

	occs, err := Expand(entity, date("2025-03-05"), date("2025-03-09"))
	require.NoError(t, err)
	require.Len(t, occs, 5)
	for i, occ := range occs {
		assert.Equal(t, domain.FormatDate(date("2025-03-05").AddDate(0, 0, i)), occ.Date)
	}
}

func TestExpandDailyEndDate(t *testing.T) {
	entity := Entity{
		AnchorDate: "2025-03-01",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyDaily, EndDate: "2025-03-03"},
	}

	occs, err := Expand(entity, date("2025-03-01"), date("2025-03-31"))
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, "2025-03-03", occs[2].Date)
}

func TestExpandWeekly(t *testing.T) {
	tests := []struct {
		name     string
		entity   Entity
		start    string
		end      string
		expected []string
	}{
		{
			name: "no dayOfWeek steps 7 days flat",
			entity: Entity{
				AnchorDate: "2025-01-06", // a Monday
				Recurring:  &domain.Recurrence{Frequency: domain.FrequencyWeekly},
			},
			start:    "2025-01-01",
			end:      "2025-01-31",
			expected: []string{"2025-01-06", "2025-01-13", "2025-01-20", "2025-01-27"},
		},
		{
			name: "anchor already on target weekday advances a full week",
			entity: Entity{
				AnchorDate: "2025-01-07", // a Tuesday
				Recurring:  &domain.Recurrence{Frequency: domain.FrequencyWeekly, DayOfWeek: intPtr(2)},
			},
			start:    "2025-01-01",
			end:      "2025-01-31",
			expected: []string{"2025-01-07", "2025-01-14", "2025-01-21", "2025-01-28"},
		},
		{
			name: "anchor off the target weekday snaps forward to it",
			entity: Entity{
				AnchorDate: "2025-01-06", // Monday, target Thursday
				Recurring:  &domain.Recurrence{Frequency: domain.FrequencyWeekly, DayOfWeek: intPtr(4)},
			},
			start:    "2025-01-01",
			end:      "2025-01-31",
			expected: []string{"2025-01-06", "2025-01-09", "2025-01-16", "2025-01-23", "2025-01-30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs, err := Expand(tt.entity, date(tt.start), date(tt.end))
			require.NoError(t, err)

			var dates []string
			for _, occ := range occs {
				dates = append(dates, occ.Date)
			}
			assert.Equal(t, tt.expected, dates)

			// After the anchor snaps onto the weekday, every later
			// occurrence is exactly 7 days apart.
			if dow := tt.entity.Recurring.DayOfWeek; dow != nil {
				for i := 1; i < len(occs); i++ {
					assert.Equal(t, time.Weekday(*dow), date(occs[i].Date).Weekday())
					if i >= 2 {
						assert.Equal(t, 7*24*time.Hour, date(occs[i].Date).Sub(date(occs[i-1].Date)))
					}
				}
			}
		})
	}
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name     string
		anchor   string
		expected []string
	}{
		{
			name:   "non-leap year February clamps to the 28th",
			anchor: "2023-01-31",
			expected: []string{"2023-01-31", "2023-02-28", "2023-03-31", "2023-04-30"},
		},
		{
			name:   "leap year February clamps to the 29th",
			anchor: "2024-01-31",
			expected: []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity := Entity{
				AnchorDate: tt.anchor,
				Recurring:  &domain.Recurrence{Frequency: domain.FrequencyMonthly, DayOfMonth: intPtr(31)},
			}
			occs, err := Expand(entity, date(tt.anchor), date(tt.anchor).AddDate(0, 3, 0))
			require.NoError(t, err)

			var dates []string
			for _, occ := range occs {
				dates = append(dates, occ.Date)
			}
			assert.Equal(t, tt.expected, dates)
		})
	}
}

func TestExpandMonthlyDefaultsToAnchorDay(t *testing.T) {
	// No dayOfMonth configured: the anchor's own day of month holds, even
	// after passing through a shorter month.
	entity := Entity{
		AnchorDate: "2025-01-30",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyMonthly},
	}

	occs, err := Expand(entity, date("2025-01-01"), date("2025-04-30"))
	require.NoError(t, err)

	var dates []string
	for _, occ := range occs {
		dates = append(dates, occ.Date)
	}
	assert.Equal(t, []string{"2025-01-30", "2025-02-28", "2025-03-30", "2025-04-30"}, dates)
}

func TestExpandYearly(t *testing.T) {
	entity := Entity{
		AnchorDate: "2023-07-14",
		AnchorTime: "10:00",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyYearly},
	}

	occs, err := Expand(entity, date("2023-01-01"), date("2026-12-31"))
	require.NoError(t, err)

	var dates []string
	for _, occ := range occs {
		dates = append(dates, occ.Date)
		assert.Equal(t, "10:00", occ.Time)
	}
	assert.Equal(t, []string{"2023-07-14", "2024-07-14", "2025-07-14", "2026-07-14"}, dates)
}

func TestExpandWindowFiltersEarlyOccurrences(t *testing.T) {
	entity := Entity{
		AnchorDate: "2025-01-01",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyWeekly},
	}

	occs, err := Expand(entity, date("2025-02-01"), date("2025-02-28"))
	require.NoError(t, err)
	require.NotEmpty(t, occs)
	for _, occ := range occs {
		assert.False(t, date(occ.Date).Before(date("2025-02-01")))
		assert.False(t, date(occ.Date).After(date("2025-02-28")))
	}
}

func TestExpandIsPure(t *testing.T) {
	entity := Entity{
		AnchorDate: "2025-01-15",
		AnchorTime: "09:00",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyMonthly, DayOfMonth: intPtr(15)},
	}

	first, err := Expand(entity, date("2025-01-01"), date("2025-12-31"))
	require.NoError(t, err)
	second, err := Expand(entity, date("2025-01-01"), date("2025-12-31"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExpandRejectsUnknownFrequency(t *testing.T) {
	entity := Entity{
		AnchorDate: "2025-01-01",
		Recurring:  &domain.Recurrence{Frequency: "fortnightly"},
	}

	_, err := Expand(entity, date("2025-01-01"), date("2025-12-31"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown frequency")
}

func TestExpandRejectsBadAnchorDate(t *testing.T) {
	entity := Entity{
		AnchorDate: "not-a-date",
		Recurring:  &domain.Recurrence{Frequency: domain.FrequencyDaily},
	}

	_, err := Expand(entity, date("2025-01-01"), date("2025-12-31"))
	require.Error(t, err)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 31, DaysInMonth(time.January, 2025))
	assert.Equal(t, 28, DaysInMonth(time.February, 2023))
	assert.Equal(t, 29, DaysInMonth(time.February, 2024))
	assert.Equal(t, 30, DaysInMonth(time.April, 2025))
}
