package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/ulasan"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const tiktokDay = `[{"platform":"tiktok","tanggal":"2024-01-01","total_ulasan_harian":10,"total_semua_ulasan_beraspek":8,
	"analisis_aspek":{"ui":{"total_ulasan_aspek":8,"detail_sentimen":{"Positif":5,"Netral":2,"Negatif":1},
	"proporsi":{"Positif":62.50,"Netral":25.00,"Negatif":12.50}}}}]`

const tiktokVersions = `[{"platform":"tiktok","tanggal_perubahan":"2024-01-05","versi_baru":"30.1.0"}]`

func newTestServer(t *testing.T) *server {
	t.Helper()
	engine, err := ulasan.NewEngine(ulasan.EngineConfig{
		DSN:              filepath.Join(t.TempDir(), "test.db"),
		WordCloudBaseURL: "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return newServer(engine, zap.NewNop())
}

// connect attaches an in-memory client session to the server.
func connect(t *testing.T, s *server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.mcp.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

// writeSeedDir writes the fixtures into a fresh directory.
func writeSeedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{"a_tiktok.json": tiktokDay, "b_versions.json": tiktokVersions} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func callTool[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: CallTool: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("%s: tool error: %s", name, resultText(res))
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("%s: marshal structured content: %v", name, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("%s: decode %s: %v", name, data, err)
	}
	return out
}

func callToolError(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error()
	}
	if !res.IsError {
		t.Fatalf("%s: expected tool error, got %s", name, resultText(res))
	}
	return resultText(res)
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	cs := connect(t, newTestServer(t))

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := make(map[string]bool)
	for _, tool := range res.Tools {
		got[tool.Name] = true
		if tool.Name == "review_analyze" && !strings.Contains(tool.Description, "Fitur, Konten") {
			t.Errorf("review_analyze description does not list aspects: %q", tool.Description)
		}
	}
	for _, want := range []string{
		"platforms_list", "aspects_list", "sentiment_timeseries", "sentiment_totals",
		"aspect_distribution", "version_timeline", "daily_breakdown", "wordcloud_url",
		"ingest_files", "review_analyze", "seed_now",
	} {
		if !got[want] {
			t.Errorf("missing tool %s", want)
		}
	}
}

func TestIngestThenQuery(t *testing.T) {
	cs := connect(t, newTestServer(t))
	dir := writeSeedDir(t)

	result := callTool[ulasan.IngestResult](t, cs, "ingest_files", map[string]any{"paths": []string{dir}})
	if !result.Success || result.Succeeded != 2 {
		t.Fatalf("ingest result = %+v", result)
	}

	platforms := callTool[platformsOutput](t, cs, "platforms_list", map[string]any{})
	if len(platforms.Platforms) != 1 || platforms.Platforms[0].Name != "tiktok" {
		t.Fatalf("platforms = %+v", platforms)
	}
	pid := platforms.Platforms[0].ID

	totals := callTool[totalsOutput](t, cs, "sentiment_totals", map[string]any{
		"start_date": "2024-01-01",
		"end_date":   "2024-01-01",
	})
	if len(totals.Totals) != 1 {
		t.Fatalf("totals = %+v", totals)
	}
	if tt := totals.Totals[0]; tt.Positive != 5 || tt.Neutral != 2 || tt.Negative != 1 {
		t.Errorf("totals = %+v, want 5/2/1", tt)
	}

	points := callTool[timeSeriesOutput](t, cs, "sentiment_timeseries", map[string]any{"platform_id": pid})
	if len(points.Points) != 1 || points.Points[0].Date != "2024-01-01" {
		t.Errorf("points = %+v", points)
	}

	shares := callTool[distributionOutput](t, cs, "aspect_distribution", map[string]any{"sentiment_type": "neutral"})
	if len(shares.Shares) != 1 || shares.Shares[0].TotalReviews != 2 {
		t.Errorf("shares = %+v", shares)
	}

	versions := callTool[versionsOutput](t, cs, "version_timeline", map[string]any{"platform_id": pid})
	if len(versions.Versions) != 1 || versions.Versions[0].VersionNumber != "30.1.0" {
		t.Errorf("versions = %+v", versions)
	}

	day := callTool[dayOutput](t, cs, "daily_breakdown", map[string]any{"platform_id": pid, "date": "2024-01-01"})
	if len(day.Aspects) != 1 || day.Aspects[0].PositiveProportion != "62.50" {
		t.Errorf("day = %+v", day)
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	cs := connect(t, newTestServer(t))

	aspects := callTool[map[string]any](t, cs, "aspects_list", map[string]any{})
	list, ok := aspects["aspects"].([]any)
	if !ok || len(list) != 0 {
		t.Errorf("aspects = %#v, want empty array", aspects["aspects"])
	}
}

func TestToolErrors(t *testing.T) {
	cs := connect(t, newTestServer(t))

	if msg := callToolError(t, cs, "aspect_distribution", map[string]any{"sentiment_type": "mixed"}); !strings.Contains(msg, "invalid query") {
		t.Errorf("unknown sentiment: %s", msg)
	}
	if msg := callToolError(t, cs, "daily_breakdown", map[string]any{"platform_id": 1, "date": "2024-01-01"}); !strings.Contains(msg, "not found") {
		t.Errorf("missing day: %s", msg)
	}
	if msg := callToolError(t, cs, "ingest_files", map[string]any{"paths": []string{}}); !strings.Contains(msg, "paths") {
		t.Errorf("empty paths: %s", msg)
	}
	if msg := callToolError(t, cs, "seed_now", map[string]any{}); !strings.Contains(msg, "--poll") {
		t.Errorf("seed_now without poller: %s", msg)
	}
}

func TestWordCloudTool(t *testing.T) {
	cs := connect(t, newTestServer(t))

	out := callTool[wordCloudOutput](t, cs, "wordcloud_url", map[string]any{
		"platform": "tiktok", "date": "2024-01-01", "aspect": "ui",
	})
	if out.URL != "https://cdn.example.com/tiktok_2024-01-01_ui.png" {
		t.Errorf("URL = %s", out.URL)
	}
}

func TestSeedNowUsesPoller(t *testing.T) {
	s := newTestServer(t)
	s.poller = newPoller(s.engine, []string{writeSeedDir(t)}, time.Hour, zap.NewNop())
	cs := connect(t, s)

	result := callTool[ulasan.IngestResult](t, cs, "seed_now", map[string]any{})
	if !result.Success || len(result.Batches) != 2 {
		t.Fatalf("seed_now result = %+v", result)
	}

	// Re-seeding is idempotent.
	result = callTool[ulasan.IngestResult](t, cs, "seed_now", map[string]any{})
	if !result.Success || result.Batches[1].VersionsIgnored != 1 {
		t.Errorf("second seed = %+v", result)
	}
}

func TestPollerLoopStops(t *testing.T) {
	s := newTestServer(t)
	p := newPoller(s.engine, []string{writeSeedDir(t)}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.start(ctx)

	// The initial poll runs immediately; wait for it to land.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		platforms, err := s.engine.Platforms(context.Background())
		if err == nil && len(platforms) == 1 {
			p.stop()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	p.stop()
	t.Fatal("initial poll did not ingest the seed directory")
}
