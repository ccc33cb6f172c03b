package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/elparko/CaseTracker/internal/analytics"
	"github.com/elparko/CaseTracker/internal/cases"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Transcribing() {
	fmt.Fprintf(f.w, "📝 Transcribing audio...\n")
}

func (f *Formatter) Analyzing() {
	fmt.Fprintf(f.w, "🤖 Analyzing case...\n")
}

func (f *Formatter) AudioLoaded(path string, duration time.Duration) {
	if duration > 0 {
		fmt.Fprintf(f.w, "🎙️  Loaded %s (%s)\n", path, formatDuration(duration))
		return
	}
	fmt.Fprintf(f.w, "🎙️  Loaded %s\n", path)
}

func (f *Formatter) CaseSaved(rec cases.Record) {
	fmt.Fprintf(f.w, "✅ Case saved: %s\n", rec.ID)
	if rec.Specialty != "" {
		fmt.Fprintf(f.w, "   %s", rec.Specialty)
		if rec.Complexity != "" {
			fmt.Fprintf(f.w, " · %s complexity", rec.Complexity)
		}
		fmt.Fprintln(f.w)
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(f.w, "   %s\n", hashTags(rec.Tags))
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *Formatter) CaseList(recs []cases.Record) {
	if len(recs) == 0 {
		fmt.Fprintf(f.w, "No cases found.\n")
		return
	}
	tw := tabwriter.NewWriter(f.w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tDATE\tSPECIALTY\tSUMMARY\tTAGS\n")
	for _, r := range recs {
		star := ""
		if r.IsFavorite {
			star = "★ "
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n",
			star, r.ID,
			r.CreatedAt.Local().Format("2006-01-02"),
			orDash(r.Specialty),
			orDash(clip(r.Summary, 48)),
			strings.Join(r.Tags, ","),
		)
	}
	tw.Flush()
}

func (f *Formatter) CaseDetail(rec cases.Record) {
	fav := ""
	if rec.IsFavorite {
		fav = " ★"
	}
	fmt.Fprintf(f.w, "📁 %s%s\n", rec.ID, fav)
	fmt.Fprintf(f.w, "   Created %s, updated %s\n\n",
		rec.CreatedAt.Local().Format("2006-01-02 15:04"),
		rec.UpdatedAt.Local().Format("2006-01-02 15:04"))

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(f.w, "%-14s %s\n", name+":", value)
		}
	}
	field("Specialty", rec.Specialty)
	field("Case type", rec.CaseType)
	field("Complexity", rec.Complexity)
	field("Age range", rec.Demographics.AgeRange)
	field("Gender", rec.Demographics.Gender)
	field("Audio", rec.AudioReference)
	if len(rec.Tags) > 0 {
		field("Tags", hashTags(rec.Tags))
	}

	section := func(title, body string) {
		if body != "" {
			fmt.Fprintf(f.w, "\n%s\n%s\n", title, body)
		}
	}
	section("Summary", rec.Summary)
	section("Key findings", bullets(rec.KeyFindings))
	section("Differential diagnosis", bullets(rec.DifferentialDiagnosis))
	section("Learning points", bullets(rec.LearningPoints))
	section("Notes", rec.Notes)
	section("Transcription", rec.Transcription)
}

func (f *Formatter) TagCounts(counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintf(f.w, "No tags yet.\n")
		return
	}
	names := make([]string, 0, len(counts))
	for t := range counts {
		names = append(names, t)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Fprintf(f.w, "🏷️  Tags:\n\n")
	for _, t := range names {
		fmt.Fprintf(f.w, "  #%-24s %d\n", t, counts[t])
	}
}

func (f *Formatter) Stats(s analytics.Summary) {
	fmt.Fprintf(f.w, "📊 Cases\n\n")
	fmt.Fprintf(f.w, "  Total:       %d\n", s.TotalCases)
	fmt.Fprintf(f.w, "  Favorites:   %d\n", s.FavoriteCases)
	fmt.Fprintf(f.w, "  Recent:      %d since %s\n", s.RecentCases, s.WindowStart.Local().Format("2006-01-02"))
	fmt.Fprintf(f.w, "  This month:  %d / %d  %s\n", s.CasesThisMonth, s.MonthlyGoal, progressBar(s.GoalProgress(), 20))

	if len(s.SpecialtyDistribution) == 0 {
		return
	}
	names := make([]string, 0, len(s.SpecialtyDistribution))
	for name := range s.SpecialtyDistribution {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.SpecialtyDistribution[names[i]], s.SpecialtyDistribution[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	fmt.Fprintf(f.w, "\n  By specialty:\n")
	for _, name := range names {
		fmt.Fprintf(f.w, "    %-24s %d\n", name, s.SpecialtyDistribution[name])
	}
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func hashTags(tags []string) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, " ")
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("  • " + item)
	}
	return b.String()
}

func progressBar(frac float64, width int) string {
	filled := int(frac*float64(width) + 0.5)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
