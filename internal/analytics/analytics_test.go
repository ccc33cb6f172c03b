package analytics

import (
	"testing"
	"time"

	"github.com/elparko/CaseTracker/internal/cases"
	"github.com/stretchr/testify/assert"
)

func record(specialty string, created time.Time, favorite bool) cases.Record {
	return cases.Record{CreatedAt: created, UpdatedAt: created, Draft: cases.Draft{Specialty: specialty, IsFavorite: favorite}}
}

func TestSummarizeSpecialtyDistribution(t *testing.T) {
	now := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	records := []cases.Record{
		record("Cardiology", now.Add(-time.Hour), false),
		record("Cardiology", now.Add(-48*time.Hour), true),
		record("Emergency Medicine", now.Add(-72*time.Hour), false),
	}

	s := Summarize(records, now, DefaultPolicy())

	assert.Equal(t, 3, s.TotalCases)
	assert.Equal(t, map[string]int{"Cardiology": 2, "Emergency Medicine": 1}, s.SpecialtyDistribution)
	assert.Equal(t, 1, s.FavoriteCases)
	assert.Equal(t, 3, s.CasesThisMonth)
	assert.Equal(t, 20, s.MonthlyGoal)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, time.Now(), DefaultPolicy())

	assert.Zero(t, s.TotalCases)
	assert.NotNil(t, s.SpecialtyDistribution)
	assert.Empty(t, s.SpecialtyDistribution)
	assert.Zero(t, s.RecentCases)
}

func TestSummarizeKeepsUnclassifiedSpecialty(t *testing.T) {
	now := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	s := Summarize([]cases.Record{record("", now, false), record("cardiology", now, false), record("Cardiology", now, false)}, now, DefaultPolicy())

	assert.Equal(t, map[string]int{"": 1, "cardiology": 1, "Cardiology": 1}, s.SpecialtyDistribution)
}

func TestRecentWindow(t *testing.T) {
	now := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		created time.Time
		recent  bool
	}{
		{"this month", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), true},
		{"window start exactly", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"just before window", time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC), false},
		{"last year", time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize([]cases.Record{record("x", tt.created, false)}, now, DefaultPolicy())
			assert.Equal(t, tt.recent, s.RecentCases == 1)
		})
	}
}

func TestWindowStartCrossesYear(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), WindowStart(now, 3))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), WindowStart(now, 1))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), WindowStart(now, 0))
}

func TestGoalProgress(t *testing.T) {
	assert.Equal(t, 0.5, Summary{CasesThisMonth: 10, MonthlyGoal: 20}.GoalProgress())
	assert.Equal(t, 1.0, Summary{CasesThisMonth: 30, MonthlyGoal: 20}.GoalProgress())
	assert.Equal(t, 1.0, Summary{MonthlyGoal: 0}.GoalProgress())
}
