package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// SentimentRecord is one platform-day of aspect sentiment as produced by the
// upstream analysis job.
type SentimentRecord struct {
	Platform             string                    `json:"platform"`
	Date                 string                    `json:"tanggal"`
	TotalReviews         int                       `json:"total_ulasan_harian"`
	TotalAspectedReviews int                       `json:"total_semua_ulasan_beraspek"`
	Aspects              map[string]AspectAnalysis `json:"analisis_aspek"`
}

type AspectAnalysis struct {
	TotalAspectReviews int         `json:"total_ulasan_aspek"`
	Counts             LabelCounts `json:"detail_sentimen"`
	Shares             LabelShares `json:"proporsi"`
}

type LabelCounts struct {
	Positive int `json:"Positif"`
	Neutral  int `json:"Netral"`
	Negative int `json:"Negatif"`
}

type LabelShares struct {
	Positive decimal.Decimal `json:"Positif"`
	Neutral  decimal.Decimal `json:"Netral"`
	Negative decimal.Decimal `json:"Negatif"`
}

func (r *SentimentRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Platform             *string                   `json:"platform"`
		Date                 *string                   `json:"tanggal"`
		TotalReviews         *count                    `json:"total_ulasan_harian"`
		TotalAspectedReviews *count                    `json:"total_semua_ulasan_beraspek"`
		Aspects              map[string]AspectAnalysis `json:"analisis_aspek"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields(
		field{"platform", raw.Platform != nil},
		field{"tanggal", raw.Date != nil},
		field{"total_ulasan_harian", raw.TotalReviews != nil},
		field{"total_semua_ulasan_beraspek", raw.TotalAspectedReviews != nil},
		field{"analisis_aspek", raw.Aspects != nil},
	); err != nil {
		return err
	}
	*r = SentimentRecord{
		Platform:             *raw.Platform,
		Date:                 *raw.Date,
		TotalReviews:         int(*raw.TotalReviews),
		TotalAspectedReviews: int(*raw.TotalAspectedReviews),
		Aspects:              raw.Aspects,
	}
	return nil
}

func (a *AspectAnalysis) UnmarshalJSON(data []byte) error {
	var raw struct {
		TotalAspectReviews *count       `json:"total_ulasan_aspek"`
		Counts             *LabelCounts `json:"detail_sentimen"`
		Shares             *LabelShares `json:"proporsi"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields(
		field{"total_ulasan_aspek", raw.TotalAspectReviews != nil},
		field{"detail_sentimen", raw.Counts != nil},
		field{"proporsi", raw.Shares != nil},
	); err != nil {
		return err
	}
	*a = AspectAnalysis{
		TotalAspectReviews: int(*raw.TotalAspectReviews),
		Counts:             *raw.Counts,
		Shares:             *raw.Shares,
	}
	return nil
}

func (c *LabelCounts) UnmarshalJSON(data []byte) error {
	var raw struct {
		Positive *count `json:"Positif"`
		Neutral  *count `json:"Netral"`
		Negative *count `json:"Negatif"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields(
		field{"detail_sentimen.Positif", raw.Positive != nil},
		field{"detail_sentimen.Netral", raw.Neutral != nil},
		field{"detail_sentimen.Negatif", raw.Negative != nil},
	); err != nil {
		return err
	}
	*c = LabelCounts{Positive: int(*raw.Positive), Neutral: int(*raw.Neutral), Negative: int(*raw.Negative)}
	return nil
}

func (s *LabelShares) UnmarshalJSON(data []byte) error {
	var raw struct {
		Positive *decimal.Decimal `json:"Positif"`
		Neutral  *decimal.Decimal `json:"Netral"`
		Negative *decimal.Decimal `json:"Negatif"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields(
		field{"proporsi.Positif", raw.Positive != nil},
		field{"proporsi.Netral", raw.Neutral != nil},
		field{"proporsi.Negatif", raw.Negative != nil},
	); err != nil {
		return err
	}
	*s = LabelShares{Positive: *raw.Positive, Neutral: *raw.Neutral, Negative: *raw.Negative}
	return nil
}

// AspectNames returns the record's aspect names in sorted order.
func (r SentimentRecord) AspectNames() []string {
	names := make([]string, 0, len(r.Aspects))
	for name := range r.Aspects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VersionRecord is one app release observed on a platform.
type VersionRecord struct {
	Platform    string        `json:"platform"`
	ReleaseDate string        `json:"tanggal_perubahan"`
	Version     VersionString `json:"versi_baru"`
}

func (r *VersionRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Platform    *string        `json:"platform"`
		ReleaseDate *string        `json:"tanggal_perubahan"`
		Version     *VersionString `json:"versi_baru"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := requireFields(
		field{"platform", raw.Platform != nil},
		field{"tanggal_perubahan", raw.ReleaseDate != nil},
		field{"versi_baru", raw.Version != nil},
	); err != nil {
		return err
	}
	*r = VersionRecord{Platform: *raw.Platform, ReleaseDate: *raw.ReleaseDate, Version: *raw.Version}
	return nil
}

// VersionString accepts a version written either as a JSON string or as a
// bare number such as 2.5.
type VersionString string

func (v *VersionString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = VersionString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("versi_baru must be a string or number: %w", err)
	}
	*v = VersionString(n.String())
	return nil
}

func validateDate(field, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("invalid %s %q: want YYYY-MM-DD", field, value)
	}
	return nil
}

// count is a non-fractional review count. Exporters that write every number
// as a float (10.0) are accepted; 10.5 is not.
type count int

func (c *count) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("count must be a number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 0); err == nil {
		*c = count(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return fmt.Errorf("count %s is not a whole number", n)
	}
	*c = count(f)
	return nil
}

type field struct {
	name    string
	present bool
}

// requireFields fails when any field was absent or null.
func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or null field: %s", strings.Join(missing, ", "))
	}
	return nil
}
