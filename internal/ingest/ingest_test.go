package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/matthewjhunter/ulasan/internal/storage"
)

const tiktokDay = `[{"platform":"tiktok","tanggal":"2024-01-01","total_ulasan_harian":10,"total_semua_ulasan_beraspek":8,
	"analisis_aspek":{"ui":{"total_ulasan_aspek":8,"detail_sentimen":{"Positif":5,"Netral":2,"Negatif":1},
	"proporsi":{"Positif":62.50,"Netral":25.00,"Negatif":12.50}}}}]`

func newTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunBatchIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := New(store)

	res := in.Run(ctx, []Payload{
		{Name: "broken.json", Data: []byte(`[{"platform":`)},
		{Name: "tiktok.json", Data: []byte(tiktokDay)},
	})

	if res.Success {
		t.Error("run with a failed batch should not succeed")
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("tally = %d/%d, want 1/1", res.Succeeded, res.Failed)
	}
	if res.Outcomes[0].State != StateRejected {
		t.Errorf("broken batch state = %s, want rejected", res.Outcomes[0].State)
	}
	if res.Outcomes[1].State != StateCommitted || res.Outcomes[1].Kind != KindSentiment {
		t.Errorf("tiktok outcome = %+v", res.Outcomes[1])
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}

	rows, err := store.AggregatedTotals(ctx, storage.TotalsFilter{})
	if err != nil {
		t.Fatalf("AggregatedTotals failed: %v", err)
	}
	if len(rows) != 1 || rows[0].PlatformName != "tiktok" {
		t.Fatalf("Expected tiktok data in storage, got %+v", rows)
	}
	if rows[0].Positive != 5 || rows[0].Neutral != 2 || rows[0].Negative != 1 {
		t.Errorf("totals = %+v, want 5/2/1", rows[0])
	}
}

func TestRunMessage(t *testing.T) {
	store := newTestStore(t)
	in := New(store)

	res := in.Run(context.Background(), []Payload{
		{Name: "a.json", Data: []byte(tiktokDay)},
		{Name: "empty.json", Data: nil},
		{Name: "odd.json", Data: []byte(`[{"foo":1}]`)},
	})

	want := "Proses selesai. 1 file berhasil, 2 file gagal.\nLog:\n" +
		"✅ a.json: Sukses.\n" +
		"❌ empty.json: Gagal - File kosong.\n" +
		"❌ odd.json: Gagal - Struktur JSON tidak dikenali."
	if res.Message != want {
		t.Errorf("Message =\n%s\nwant\n%s", res.Message, want)
	}
}

func TestRunWithoutPayloads(t *testing.T) {
	res := New(newTestStore(t)).Run(context.Background(), nil)
	if res.Success {
		t.Error("empty run should not succeed")
	}
	if res.Message != "Tidak ada file yang dipilih." {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := New(store)

	for i := 0; i < 2; i++ {
		if res := in.Run(ctx, []Payload{{Name: "a.json", Data: []byte(tiktokDay)}}); !res.Success {
			t.Fatalf("run %d failed: %s", i, res.Message)
		}
	}

	rows, err := store.TimeSeries(ctx, storage.TimeSeriesFilter{})
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected 1 row after re-ingest, got %d", len(rows))
	}
}

func TestRunOverwritesDetailsOnReingest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := New(store)

	in.Run(ctx, []Payload{{Name: "a.json", Data: []byte(tiktokDay)}})
	updated := strings.Replace(tiktokDay, `"Positif":5`, `"Positif":7`, 1)
	updated = strings.Replace(updated, `"total_ulasan_harian":10`, `"total_ulasan_harian":12`, 1)
	if res := in.Run(ctx, []Payload{{Name: "b.json", Data: []byte(updated)}}); !res.Success {
		t.Fatalf("second run failed: %s", res.Message)
	}

	platforms, _ := store.ResolvePlatforms(ctx, []string{"tiktok"})
	ds, err := store.GetDailySummary(ctx, platforms["tiktok"], "2024-01-01")
	if err != nil || ds == nil {
		t.Fatalf("GetDailySummary failed: %v", err)
	}
	if ds.TotalReviews != 12 {
		t.Errorf("TotalReviews = %d, want 12", ds.TotalReviews)
	}
	details, err := store.ListSentimentDetails(ctx, ds.ID)
	if err != nil {
		t.Fatalf("ListSentimentDetails failed: %v", err)
	}
	if len(details) != 1 || details[0].PositiveCount != 7 {
		t.Errorf("details = %+v, want one row with 7 positive", details)
	}
}

func TestRunMalformedRecordKeepsStoredData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := New(store)

	in.Run(ctx, []Payload{{Name: "a.json", Data: []byte(tiktokDay)}})
	res := in.Run(ctx, []Payload{
		{Name: "broken.json", Data: []byte(`[{"platform":"tiktok","tanggal":"2024-01-01","analisis_aspek":{"ui":{}}}]`)},
		{Name: "null-platform.json", Data: []byte(`[{"platform":null,"tanggal_perubahan":"2024-01-05","versi_baru":"1.0"}]`)},
	})
	if res.Failed != 2 {
		t.Fatalf("Failed = %d, want 2: %s", res.Failed, res.Message)
	}
	for _, o := range res.Outcomes {
		if o.State != StateFailed {
			t.Errorf("%s state = %s, want failed", o.Name, o.State)
		}
	}

	platforms, err := store.ListPlatforms(ctx)
	if err != nil {
		t.Fatalf("ListPlatforms failed: %v", err)
	}
	if len(platforms) != 1 || platforms[0].Name != "tiktok" {
		t.Errorf("platforms = %+v, want only tiktok", platforms)
	}

	ids, _ := store.ResolvePlatforms(ctx, []string{"tiktok"})
	ds, err := store.GetDailySummary(ctx, ids["tiktok"], "2024-01-01")
	if err != nil || ds == nil {
		t.Fatalf("GetDailySummary failed: %v", err)
	}
	if ds.TotalReviews != 10 {
		t.Errorf("TotalReviews = %d, want 10", ds.TotalReviews)
	}
	details, err := store.ListSentimentDetails(ctx, ds.ID)
	if err != nil {
		t.Fatalf("ListSentimentDetails failed: %v", err)
	}
	if len(details) != 1 || details[0].PositiveCount != 5 {
		t.Errorf("details = %+v, want the original 5 positive", details)
	}
}

func TestRunUnreadablePayload(t *testing.T) {
	store := newTestStore(t)
	res := New(store).Run(context.Background(), []Payload{
		{Name: "b_link.json", Err: errors.New("no such file or directory")},
		{Name: "a.json", Data: []byte(tiktokDay)},
	})
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 1/1", res.Succeeded, res.Failed)
	}
	o := res.Outcomes[0]
	if o.State != StateFailed || o.Kind != KindUnknown {
		t.Errorf("outcome = %+v, want failed unknown", o)
	}
	if !strings.Contains(res.Message, "❌ b_link.json: Gagal - failed to read file: no such file or directory") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestRunVersionsFirstWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	in := New(store)

	first := `[{"platform":"tiktok","tanggal_perubahan":"2024-02-01","versi_baru":"1.2.0"},
		{"platform":"tiktok","tanggal_perubahan":"2024-01-01","versi_baru":"1.1.0"}]`
	second := `[{"platform":"tiktok","tanggal_perubahan":"2024-03-01","versi_baru":"1.2.0"}]`

	res := in.Run(ctx, []Payload{{Name: "v1.json", Data: []byte(first)}, {Name: "v2.json", Data: []byte(second)}})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Message)
	}
	if c := res.Outcomes[0].Counters; c.VersionsInserted != 2 || c.VersionsIgnored != 0 {
		t.Errorf("first batch counters = %+v", c)
	}
	if c := res.Outcomes[1].Counters; c.VersionsInserted != 0 || c.VersionsIgnored != 1 {
		t.Errorf("second batch counters = %+v", c)
	}

	platforms, _ := store.ResolvePlatforms(ctx, []string{"tiktok"})
	rows, err := store.VersionTimeline(ctx, storage.VersionFilter{PlatformID: platforms["tiktok"]})
	if err != nil {
		t.Fatalf("VersionTimeline failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 versions, got %+v", rows)
	}
	if rows[1].VersionNumber != "1.2.0" || rows[1].ReleaseDate != "2024-02-01" {
		t.Errorf("1.2.0 should keep its first release date, got %+v", rows[1])
	}
}

func TestRunTypedDecodeFailure(t *testing.T) {
	res := New(newTestStore(t)).Run(context.Background(), []Payload{
		{Name: "bad-date.json", Data: []byte(`[{"platform":"tiktok","tanggal":"kemarin","total_ulasan_harian":1,"total_semua_ulasan_beraspek":1,"analisis_aspek":{}}]`)},
	})
	o := res.Outcomes[0]
	if o.State != StateFailed || o.Kind != KindSentiment {
		t.Errorf("outcome = %+v, want failed sentiment", o)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(newTestStore(t)).Run(ctx, []Payload{{Name: "a.json", Data: []byte(tiktokDay)}})
	if res.Success || res.Outcomes[0].State != StateFailed {
		t.Errorf("cancelled run should fail its batches, got %+v", res.Outcomes[0])
	}
	if !errors.Is(res.Outcomes[0].Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Outcomes[0].Err)
	}
}

func TestRunParallelWorkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var records []string
	for day := 1; day <= 9; day++ {
		for _, p := range []string{"tiktok", "shopee"} {
			records = append(records, fmt.Sprintf(
				`{"platform":%q,"tanggal":"2024-01-%02d","total_ulasan_harian":1,"total_semua_ulasan_beraspek":1,
				"analisis_aspek":{"ui":{"total_ulasan_aspek":1,"detail_sentimen":{"Positif":1,"Netral":0,"Negatif":0},
				"proporsi":{"Positif":100,"Netral":0,"Negatif":0}}}}`, p, day))
		}
	}
	data := "[" + strings.Join(records, ",") + "]"

	res := New(store, WithWorkers(4)).Run(ctx, []Payload{{Name: "bulk.json", Data: []byte(data)}})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Message)
	}
	if c := res.Outcomes[0].Counters; c.Records != 18 || c.Details != 18 {
		t.Errorf("counters = %+v, want 18 records and details", c)
	}

	rows, err := store.AggregatedTotals(ctx, storage.TotalsFilter{})
	if err != nil {
		t.Fatalf("AggregatedTotals failed: %v", err)
	}
	for _, r := range rows {
		if r.Positive != 9 {
			t.Errorf("%s positive = %d, want 9", r.PlatformName, r.Positive)
		}
	}
}

// dropSink wraps a real store but forgets some dimension names, standing in
// for a resolver that could not produce every id.
type dropSink struct {
	*storage.SQLStore
	dropPlatform string
	dropAspect   string
}

func (d dropSink) ResolvePlatforms(ctx context.Context, names []string) (map[string]int64, error) {
	ids, err := d.SQLStore.ResolvePlatforms(ctx, names)
	delete(ids, d.dropPlatform)
	return ids, err
}

func (d dropSink) ResolveAspects(ctx context.Context, names []string) (map[string]int64, error) {
	ids, err := d.SQLStore.ResolveAspects(ctx, names)
	delete(ids, d.dropAspect)
	return ids, err
}

func TestRunCountsSkips(t *testing.T) {
	store := newTestStore(t)
	sink := dropSink{SQLStore: store, dropPlatform: "ghost", dropAspect: "harga"}

	const detail = `{"total_ulasan_aspek":1,"detail_sentimen":{"Positif":1,"Netral":0,"Negatif":0},"proporsi":{"Positif":100,"Netral":0,"Negatif":0}}`
	data := `[
		{"platform":"tiktok","tanggal":"2024-01-01","total_ulasan_harian":3,"total_semua_ulasan_beraspek":3,
		 "analisis_aspek":{"ui":` + detail + `,"harga":` + detail + `}},
		{"platform":"ghost","tanggal":"2024-01-01","total_ulasan_harian":1,"total_semua_ulasan_beraspek":1,"analisis_aspek":{"ui":` + detail + `}}
	]`
	res := New(sink).Run(context.Background(), []Payload{{Name: "mixed.json", Data: []byte(data)}})
	if !res.Success {
		t.Fatalf("skips should not fail the batch: %s", res.Message)
	}
	c := res.Outcomes[0].Counters
	if c.Records != 1 || c.SkippedRecords != 1 {
		t.Errorf("records = %d skipped = %d, want 1/1", c.Records, c.SkippedRecords)
	}
	if c.Details != 1 || c.SkippedDetails != 1 {
		t.Errorf("details = %d skipped = %d, want 1/1", c.Details, c.SkippedDetails)
	}
}

// failSink fails every daily summary upsert.
type failSink struct {
	*storage.SQLStore
}

func (failSink) UpsertDailySummary(context.Context, int64, string, int, int) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRunStorageFailure(t *testing.T) {
	sink := failSink{SQLStore: newTestStore(t)}
	res := New(sink).Run(context.Background(), []Payload{{Name: "a.json", Data: []byte(tiktokDay)}})

	o := res.Outcomes[0]
	if o.State != StateFailed {
		t.Fatalf("State = %s, want failed", o.State)
	}
	if !IsStorage(o.Err) {
		t.Errorf("Err = %v, want StorageError", o.Err)
	}
	if !strings.Contains(res.Message, "❌ a.json: Gagal - tiktok 2024-01-01: disk full") {
		t.Errorf("Message = %q", res.Message)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *recordingObserver) ObserveBatch(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func TestRunNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	New(newTestStore(t), WithObserver(obs)).Run(context.Background(), []Payload{
		{Name: "a.json", Data: []byte(tiktokDay)},
		{Name: "b.json", Data: []byte("")},
	})
	if len(obs.outcomes) != 2 {
		t.Fatalf("observer saw %d outcomes, want 2", len(obs.outcomes))
	}
	if obs.outcomes[1].Name != "b.json" || obs.outcomes[1].State != StateRejected {
		t.Errorf("second outcome = %+v", obs.outcomes[1])
	}
}

func TestGroupByDayKeepsInputOrder(t *testing.T) {
	records := []SentimentRecord{
		{Platform: "a", Date: "2024-01-01", TotalReviews: 1},
		{Platform: "b", Date: "2024-01-01", TotalReviews: 2},
		{Platform: "a", Date: "2024-01-01", TotalReviews: 3},
	}
	groups := groupByDay(records)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][0].TotalReviews != 1 || groups[0][1].TotalReviews != 3 {
		t.Errorf("group a out of order: %+v", groups[0])
	}
}
