// Package analytics computes summary statistics over case records.
package analytics

import (
	"time"

	"github.com/elparko/CaseTracker/internal/cases"
)

// Policy parameterizes the summary.
type Policy struct {
	// RecentMonths is the number of calendar months, including the current
	// one, counted as recent.
	RecentMonths int `toml:"recent_months" validate:"gte=1,lte=120"`
	// MonthlyGoal is the target number of cases per calendar month.
	MonthlyGoal int `toml:"monthly_goal" validate:"gte=0"`
}

// DefaultPolicy counts the current and two preceding months as recent.
func DefaultPolicy() Policy {
	return Policy{RecentMonths: 3, MonthlyGoal: 20}
}

// Summary is a point-in-time snapshot of the repository.
type Summary struct {
	TotalCases            int            `json:"total_cases"`
	SpecialtyDistribution map[string]int `json:"specialty_distribution"`
	RecentCases           int            `json:"recent_cases"`
	CasesThisMonth        int            `json:"cases_this_month"`
	MonthlyGoal           int            `json:"monthly_goal"`
	FavoriteCases         int            `json:"favorite_cases"`
	WindowStart           time.Time      `json:"window_start"`
}

// GoalProgress returns the fraction of the monthly goal reached, capped at 1.
// A zero goal counts as reached.
func (s Summary) GoalProgress() float64 {
	if s.MonthlyGoal <= 0 {
		return 1
	}
	p := float64(s.CasesThisMonth) / float64(s.MonthlyGoal)
	if p > 1 {
		return 1
	}
	return p
}

// WindowStart returns the first instant of the calendar month months-1 months
// before now's month, in now's location.
func WindowStart(now time.Time, months int) time.Time {
	if months < 1 {
		months = 1
	}
	y, m, _ := now.Date()
	return time.Date(y, m-time.Month(months-1), 1, 0, 0, 0, 0, now.Location())
}

// Summarize computes the summary of records as of now.
func Summarize(records []cases.Record, now time.Time, p Policy) Summary {
	if p.RecentMonths < 1 {
		p.RecentMonths = DefaultPolicy().RecentMonths
	}
	start := WindowStart(now, p.RecentMonths)
	monthStart := WindowStart(now, 1)

	s := Summary{
		TotalCases:            len(records),
		SpecialtyDistribution: make(map[string]int),
		MonthlyGoal:           p.MonthlyGoal,
		WindowStart:           start,
	}
	for _, r := range records {
		s.SpecialtyDistribution[r.Specialty]++
		if !r.CreatedAt.Before(start) {
			s.RecentCases++
		}
		if !r.CreatedAt.Before(monthStart) {
			s.CasesThisMonth++
		}
		if r.IsFavorite {
			s.FavoriteCases++
		}
	}
	return s
}
