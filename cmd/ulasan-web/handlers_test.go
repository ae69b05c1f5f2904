package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/auth"
)

const tiktokDay = `[{"platform":"tiktok","tanggal":"2024-01-01","total_ulasan_harian":10,"total_semua_ulasan_beraspek":8,
	"analisis_aspek":{"ui":{"total_ulasan_aspek":8,"detail_sentimen":{"Positif":5,"Netral":2,"Negatif":1},
	"proporsi":{"Positif":62.50,"Netral":25.00,"Negatif":12.50}}}}]`

const tiktokVersions = `[{"platform":"tiktok","tanggal_perubahan":"2024-01-05","versi_baru":"30.1.0"}]`

type testFixtures struct {
	router http.Handler
	engine *ulasan.Engine
}

// newTestFixtures wires a router to an engine on a fresh SQLite file. The
// analyzer points at ollamaURL when non-empty.
func newTestFixtures(t *testing.T, opts routerOptions, ollamaURL string) *testFixtures {
	t.Helper()
	engine, err := ulasan.NewEngine(ulasan.EngineConfig{
		DSN:              filepath.Join(t.TempDir(), "test.db"),
		AnalyzerURL:      ollamaURL,
		AnalyzerAspects:  []string{"Fitur", "Harga"},
		WordCloudBaseURL: "https://cdn.example.com/clouds",
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return &testFixtures{router: newRouter(engine, opts), engine: engine}
}

func (f *testFixtures) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, body := range files {
		fw, err := mw.CreateFormFile(uploadField, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(body))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest("POST", "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestUploadThenQuery(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, uploadRequest(t, map[string]string{"tiktok.json": tiktokDay, "versions.json": tiktokVersions}))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	result := decode[ulasan.IngestResult](t, rec)
	if !result.Success || result.Succeeded != 2 {
		t.Fatalf("upload result = %+v", result)
	}

	rec = f.do(t, httptest.NewRequest("GET", "/api/sentiment/aggregate?startDate=2024-01-01&endDate=2024-01-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("aggregate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	totals := decode[[]ulasan.PlatformTotals](t, rec)
	if len(totals) != 1 || totals[0].PlatformName != "tiktok" || totals[0].Positive != 5 || totals[0].Neutral != 2 || totals[0].Negative != 1 {
		t.Errorf("totals = %+v, want tiktok 5/2/1", totals)
	}

	platforms := decode[[]ulasan.Platform](t, f.do(t, httptest.NewRequest("GET", "/api/platforms", nil)))
	if len(platforms) != 1 {
		t.Fatalf("platforms = %+v", platforms)
	}
	pid := platforms[0].ID

	rec = f.do(t, httptest.NewRequest("GET", "/api/versions?platformId="+itoa(pid), nil))
	versions := decode[[]ulasan.VersionEvent](t, rec)
	if len(versions) != 1 || versions[0].VersionNumber != "30.1.0" {
		t.Errorf("versions = %+v", versions)
	}

	rec = f.do(t, httptest.NewRequest("GET", "/api/sentiment?platformId="+itoa(pid), nil))
	points := decode[[]ulasan.TimeSeriesPoint](t, rec)
	if len(points) != 1 || points[0].AspectName != "ui" {
		t.Errorf("points = %+v", points)
	}

	rec = f.do(t, httptest.NewRequest("GET", "/api/sentiment/distribution?sentimentType=positive", nil))
	shares := decode[[]ulasan.AspectShare](t, rec)
	if len(shares) != 1 || shares[0].TotalReviews != 5 {
		t.Errorf("shares = %+v", shares)
	}

	rec = f.do(t, httptest.NewRequest("GET", "/api/day?platformId="+itoa(pid)+"&date=2024-01-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("day status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"positive_proportion":"62.5"`) {
		t.Errorf("day body missing proportion: %s", rec.Body.String())
	}
}

func TestUploadReportsBatchFailures(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, uploadRequest(t, map[string]string{"broken.json": "{"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	result := decode[ulasan.IngestResult](t, rec)
	if result.Success || result.Failed != 1 {
		t.Errorf("result = %+v, want one failure", result)
	}
	if !strings.Contains(result.Message, "❌ broken.json: Gagal") {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, uploadRequest(t, nil))
	result := decode[ulasan.IngestResult](t, rec)
	if result.Success || result.Message != "Tidak ada file yang dipilih." {
		t.Errorf("result = %+v", result)
	}
}

func TestUploadRequiresToken(t *testing.T) {
	issuer, err := auth.NewIssuer("s3cret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	f := newTestFixtures(t, routerOptions{issuer: issuer}, "")

	rec := f.do(t, uploadRequest(t, map[string]string{"tiktok.json": tiktokDay}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	token, err := issuer.Mint("ci", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	req := uploadRequest(t, map[string]string{"tiktok.json": tiktokDay})
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with token = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	req := httptest.NewRequest("POST", "/api/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if rec := f.do(t, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQueryValidationIsBadRequest(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	paths := []string{
		"/api/sentiment?platformId=abc",
		"/api/sentiment?startDate=2024-13-01",
		"/api/sentiment/aggregate?startDate=2024-02-01&endDate=2024-01-01",
		"/api/sentiment/distribution?sentimentType=mixed",
		"/api/versions",
		"/api/day?platformId=1",
		"/api/wordcloud?platform=tiktok&aspect=ui&date=x",
	}
	for _, p := range paths {
		rec := f.do(t, httptest.NewRequest("GET", p, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", p, rec.Code)
			continue
		}
		body := decode[map[string]string](t, rec)
		if body["error"] == "" {
			t.Errorf("%s: missing error message", p)
		}
	}
}

func TestDayNotFound(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, httptest.NewRequest("GET", "/api/day?platformId=1&date=2024-01-01", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWordCloud(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, httptest.NewRequest("GET", "/api/wordcloud?platform=tiktok&date=2024-01-01&aspect=ui", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["url"] != "https://cdn.example.com/clouds/tiktok_2024-01-01_ui.png" {
		t.Errorf("url = %s", body["url"])
	}
}

func TestAnalyze(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, _ := json.Marshal(map[string]any{"model": "llama3", "response": `{"Fitur":"Positif","Harga":"Negatif"}`, "done": true})
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write(append(out, '\n'))
	}))
	defer ollama.Close()
	f := newTestFixtures(t, routerOptions{}, ollama.URL)

	rec := f.do(t, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(`{"reviewText":"fiturnya lengkap tapi mahal"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decode[map[string]string](t, rec)
	if got["Fitur"] != "Positif" || got["Harga"] != "Negatif" {
		t.Errorf("result = %v", got)
	}

	rec = f.do(t, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(`{"reviewText":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty review status = %d, want 400", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "Silakan masukkan ulasan terlebih dahulu." {
		t.Errorf("error = %q", body["error"])
	}

	rec = f.do(t, httptest.NewRequest("POST", "/api/analyze", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	rec := f.do(t, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}

	f.do(t, httptest.NewRequest("GET", "/api/platforms", nil))
	rec = f.do(t, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ulasan_query_duration_seconds") {
		t.Errorf("metrics missing query histogram")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newTestFixtures(t, routerOptions{}, "")

	if rec := f.do(t, httptest.NewRequest("GET", "/api/upload", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestServerWriteTimeoutCoversUploadRun(t *testing.T) {
	srv := newHTTPServer(":0", http.NotFoundHandler())
	if srv.WriteTimeout <= uploadRunTimeout {
		t.Errorf("WriteTimeout = %s, want more than the %s upload run", srv.WriteTimeout, uploadRunTimeout)
	}
}
