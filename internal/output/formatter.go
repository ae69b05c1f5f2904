package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/matthewjhunter/ulasan"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputIngestResult outputs the result of an ingestion run
func (f *Formatter) OutputIngestResult(result *ulasan.IngestResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "run_id=%s\n", result.RunID)
		fmt.Fprintf(f.out, "succeeded=%d\n", result.Succeeded)
		fmt.Fprintf(f.out, "failed=%d\n", result.Failed)
		for _, b := range result.Batches {
			fmt.Fprintf(f.out, "batch=%s\tkind=%s\tstate=%s\trecords=%d\tdetails=%d\tversions=%d",
				b.Name, b.Kind, b.State, b.Records, b.Details, b.VersionsInserted)
			if b.Error != "" {
				fmt.Fprintf(f.out, "\terror=%s", b.Error)
			}
			fmt.Fprintln(f.out)
		}
		return nil
	case FormatHuman:
		fmt.Fprintln(f.out, result.Message)
		var records, details int
		for _, b := range result.Batches {
			records += b.Records
			details += b.Details
		}
		if records > 0 {
			fmt.Fprintf(f.out, "\nStored %s daily summaries and %s aspect details\n",
				humanize.Comma(int64(records)), humanize.Comma(int64(details)))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPlatforms outputs the platform dimension
func (f *Formatter) OutputPlatforms(platforms []ulasan.Platform) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(platforms)
	case FormatText:
		for _, p := range platforms {
			fmt.Fprintf(f.out, "id=%d\tname=%s\n", p.ID, p.Name)
		}
		return nil
	case FormatHuman:
		if len(platforms) == 0 {
			fmt.Fprintln(f.out, "No platforms ingested yet")
			return nil
		}
		fmt.Fprintf(f.out, "Platforms (%d):\n", len(platforms))
		for _, p := range platforms {
			fmt.Fprintf(f.out, "  %4d  %s\n", p.ID, p.Name)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputAspects outputs the aspect dimension
func (f *Formatter) OutputAspects(aspects []ulasan.Aspect) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(aspects)
	case FormatText:
		for _, a := range aspects {
			fmt.Fprintf(f.out, "id=%d\tname=%s\n", a.ID, a.Name)
		}
		return nil
	case FormatHuman:
		if len(aspects) == 0 {
			fmt.Fprintln(f.out, "No aspects ingested yet")
			return nil
		}
		fmt.Fprintf(f.out, "Aspects (%d):\n", len(aspects))
		for _, a := range aspects {
			fmt.Fprintf(f.out, "  %4d  %s\n", a.ID, a.Name)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputTimeSeries outputs daily sentiment counts
func (f *Formatter) OutputTimeSeries(points []ulasan.TimeSeriesPoint) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(points)
	case FormatText:
		for _, p := range points {
			fmt.Fprintf(f.out, "date=%s\tplatform=%s\taspect=%s\tpositive=%d\tneutral=%d\tnegative=%d\n",
				p.Date, p.PlatformName, p.AspectName, p.PositiveCount, p.NeutralCount, p.NegativeCount)
		}
		return nil
	case FormatHuman:
		if len(points) == 0 {
			fmt.Fprintln(f.out, "No sentiment data for this filter")
			return nil
		}
		fmt.Fprintf(f.out, "%-10s  %-16s  %-16s  %9s  %9s  %9s\n",
			"Date", "Platform", "Aspect", "Positive", "Neutral", "Negative")
		fmt.Fprintln(f.out, strings.Repeat("-", 78))
		for _, p := range points {
			fmt.Fprintf(f.out, "%-10s  %-16s  %-16s  %9s  %9s  %9s\n",
				p.Date, truncate(p.PlatformName, 16), truncate(p.AspectName, 16),
				humanize.Comma(p.PositiveCount), humanize.Comma(p.NeutralCount), humanize.Comma(p.NegativeCount))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputTotals outputs per-platform sentiment totals
func (f *Formatter) OutputTotals(totals []ulasan.PlatformTotals) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(totals)
	case FormatText:
		for _, t := range totals {
			fmt.Fprintf(f.out, "platform_id=%d\tplatform=%s\tpositive=%d\tneutral=%d\tnegative=%d\n",
				t.PlatformID, t.PlatformName, t.Positive, t.Neutral, t.Negative)
		}
		return nil
	case FormatHuman:
		if len(totals) == 0 {
			fmt.Fprintln(f.out, "No sentiment data for this filter")
			return nil
		}
		for _, t := range totals {
			sum := t.Positive + t.Neutral + t.Negative
			fmt.Fprintf(f.out, "📱 %s (%s reviews)\n", t.PlatformName, humanize.Comma(sum))
			fmt.Fprintf(f.out, "   👍 %s  😐 %s  👎 %s\n",
				humanize.Comma(t.Positive), humanize.Comma(t.Neutral), humanize.Comma(t.Negative))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDistribution outputs one sentiment's per-aspect counts
func (f *Formatter) OutputDistribution(shares []ulasan.AspectShare) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(shares)
	case FormatText:
		for _, s := range shares {
			fmt.Fprintf(f.out, "platform=%s\taspect=%s\ttotal=%d\n",
				s.PlatformName, s.AspectName, s.TotalReviews)
		}
		return nil
	case FormatHuman:
		if len(shares) == 0 {
			fmt.Fprintln(f.out, "No sentiment data for this filter")
			return nil
		}
		for i, s := range shares {
			if i == 0 || s.PlatformName != shares[i-1].PlatformName {
				if i > 0 {
					fmt.Fprintln(f.out)
				}
				fmt.Fprintf(f.out, "📱 %s\n", s.PlatformName)
			}
			fmt.Fprintf(f.out, "  • %-20s %s\n", s.AspectName, humanize.Comma(s.TotalReviews))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputVersions outputs a release timeline
func (f *Formatter) OutputVersions(versions []ulasan.VersionEvent) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(versions)
	case FormatText:
		for _, v := range versions {
			fmt.Fprintf(f.out, "date=%s\tplatform=%s\tversion=%s\n",
				v.ReleaseDate, v.PlatformName, v.VersionNumber)
		}
		return nil
	case FormatHuman:
		if len(versions) == 0 {
			fmt.Fprintln(f.out, "No releases recorded")
			return nil
		}
		for _, v := range versions {
			fmt.Fprintf(f.out, "🏷️  %s  %s (%s)\n", v.ReleaseDate, v.VersionNumber, relativeDate(v.ReleaseDate))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDay outputs the stored breakdown for one platform and day
func (f *Formatter) OutputDay(day *ulasan.DayBreakdown) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(day)
	case FormatText:
		fmt.Fprintf(f.out, "platform_id=%d\tdate=%s\ttotal=%d\taspected=%d\n",
			day.PlatformID, day.Date, day.TotalReviews, day.TotalAspectedReviews)
		for _, a := range day.Aspects {
			fmt.Fprintf(f.out, "  aspect=%s\ttotal=%d\tpositive=%d\tneutral=%d\tnegative=%d\tpositive_pct=%s\tneutral_pct=%s\tnegative_pct=%s\n",
				a.AspectName, a.TotalAspectReviews, a.PositiveCount, a.NeutralCount, a.NegativeCount,
				a.PositiveProportion.StringFixed(2), a.NeutralProportion.StringFixed(2), a.NegativeProportion.StringFixed(2))
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s: %s reviews, %s with aspects\n", day.Date,
			humanize.Comma(int64(day.TotalReviews)), humanize.Comma(int64(day.TotalAspectedReviews)))
		fmt.Fprintln(f.out, strings.Repeat("=", 70))
		for _, a := range day.Aspects {
			fmt.Fprintf(f.out, "  • %s (%s)\n", a.AspectName, humanize.Comma(int64(a.TotalAspectReviews)))
			fmt.Fprintf(f.out, "    👍 %d (%s%%)  😐 %d (%s%%)  👎 %d (%s%%)\n",
				a.PositiveCount, a.PositiveProportion.StringFixed(2),
				a.NeutralCount, a.NeutralProportion.StringFixed(2),
				a.NegativeCount, a.NegativeProportion.StringFixed(2))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputAnalysis outputs per-aspect labels for one review
func (f *Formatter) OutputAnalysis(result map[string]string) error {
	aspects := make([]string, 0, len(result))
	for a := range result {
		aspects = append(aspects, a)
	}
	sort.Strings(aspects)

	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		for _, a := range aspects {
			fmt.Fprintf(f.out, "aspect=%s\tsentiment=%s\n", a, result[a])
		}
		return nil
	case FormatHuman:
		for _, a := range aspects {
			fmt.Fprintf(f.out, "%s %-12s %s\n", sentimentIcon(result[a]), a, result[a])
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputToken outputs a freshly minted upload token
func (f *Formatter) OutputToken(token string, expires time.Time) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(map[string]interface{}{
			"token":      token,
			"expires_at": expires.UTC().Format(time.RFC3339),
		})
	case FormatText:
		fmt.Fprintf(f.out, "token=%s\texpires_at=%s\n", token, expires.UTC().Format(time.RFC3339))
		return nil
	case FormatHuman:
		fmt.Fprintln(f.out, token)
		fmt.Fprintf(f.err, "Expires %s\n", humanize.Time(expires))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

func sentimentIcon(label string) string {
	switch label {
	case "Positif":
		return "👍"
	case "Negatif":
		return "👎"
	}
	return "😐"
}

// relativeDate renders a YYYY-MM-DD date relative to now, or the input
// unchanged when it does not parse.
func relativeDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return humanize.Time(t)
}

// truncate truncates a string to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
