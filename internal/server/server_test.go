package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-coin-report/internal/config"
	"daily-coin-report/internal/storage"
)

type fakeQueryStore struct {
	records   map[string]storage.Record
	latest    string
	summaries map[string]string
	anomalies map[string][]storage.AnomalyRecord
}

func newFakeQueryStore() *fakeQueryStore {
	return &fakeQueryStore{
		records:   make(map[string]storage.Record),
		summaries: make(map[string]string),
		anomalies: make(map[string][]storage.AnomalyRecord),
	}
}

func (f *fakeQueryStore) UpsertRecord(_ context.Context, record storage.Record) error {
	f.records[record.Date] = record
	if record.Date > f.latest {
		f.latest = record.Date
	}
	return nil
}

func (f *fakeQueryStore) GetRecord(_ context.Context, date string) (storage.Record, error) {
	record, ok := f.records[date]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return record, nil
}

func (f *fakeQueryStore) ListRecords(context.Context) ([]storage.Record, error) {
	return nil, nil
}

func (f *fakeQueryStore) ListRecentRecords(context.Context, int) ([]storage.Record, error) {
	return nil, nil
}

func (f *fakeQueryStore) CountRecords(context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

func (f *fakeQueryStore) LatestDate(context.Context) (string, error) {
	if f.latest == "" {
		return "", storage.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeQueryStore) ReplaceAnomalies(_ context.Context, date string, rows []storage.AnomalyRecord) error {
	f.anomalies[date] = rows
	return nil
}

func (f *fakeQueryStore) ListAnomalies(_ context.Context, date string) ([]storage.AnomalyRecord, error) {
	return f.anomalies[date], nil
}

func (f *fakeQueryStore) UpsertSummary(_ context.Context, date, summary string) error {
	f.summaries[date] = summary
	return nil
}

func (f *fakeQueryStore) GetSummary(_ context.Context, date string) (string, error) {
	summary, ok := f.summaries[date]
	if !ok {
		return "", storage.ErrNotFound
	}
	return summary, nil
}

func (f *fakeQueryStore) UpsertReport(context.Context, string, []byte) error { return nil }

func (f *fakeQueryStore) GetReport(context.Context, string) ([]byte, error) {
	return nil, storage.ErrNotFound
}

func newTestServer(store *fakeQueryStore) *Server {
	return New(config.ServerConfig{ListenAddr: ":0"}, store, store, store, zerolog.Nop())
}

func getLatest(t *testing.T, s *Server) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/latest", nil)
	s.engine.ServeHTTP(recorder, request)
	return recorder
}

func TestLatestEmptyStore(t *testing.T) {
	recorder := getLatest(t, newTestServer(newFakeQueryStore()))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("empty store must respond 404, got %d", recorder.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("404 body must be JSON: %v", err)
	}
	if body["error"] != "no data available" {
		t.Fatalf("unexpected error body: %#v", body)
	}
}

func TestLatestFullResponse(t *testing.T) {
	store := newFakeQueryStore()
	price := decimal.NewFromInt(53000)
	marketCap := decimal.NewFromFloat(1.2e12)
	_ = store.UpsertRecord(context.Background(), storage.Record{
		Date:         "2025-03-02",
		Coin:         "bitcoin",
		PriceUSD:     &price,
		MarketCapUSD: &marketCap,
	})
	_ = store.UpsertSummary(context.Background(), "2025-03-02", "Price fell sharply today.")
	_ = store.ReplaceAnomalies(context.Background(), "2025-03-02", []storage.AnomalyRecord{{
		Date:           "2025-03-02",
		Metric:         "price",
		TodayValue:     decimal.NewFromInt(53000),
		YesterdayValue: decimal.NewFromInt(60000),
		ChangePct:      decimal.NewFromFloat(11.67),
		Note:           "Unusual price movement (>10%)",
	}})

	recorder := getLatest(t, newTestServer(store))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		Date         string  `json:"date"`
		Coin         string  `json:"coin"`
		PriceUSD     *string `json:"price_usd"`
		Volume24hUSD *string `json:"volume_24h_usd"`
		Summary      string  `json:"summary"`
		Anomalies    []struct {
			Metric    string `json:"metric"`
			ChangePct string `json:"change_pct"`
			Note      string `json:"note"`
		} `json:"anomalies"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("response must be JSON: %v", err)
	}

	if body.Date != "2025-03-02" || body.Coin != "bitcoin" {
		t.Fatalf("unexpected identity fields: %+v", body)
	}
	if body.PriceUSD == nil || *body.PriceUSD != "53000" {
		t.Fatalf("unexpected price: %v", body.PriceUSD)
	}
	if body.Volume24hUSD != nil {
		t.Fatal("absent volume must serialize as null")
	}
	if body.Summary != "Price fell sharply today." {
		t.Fatalf("unexpected summary: %q", body.Summary)
	}
	if len(body.Anomalies) != 1 || body.Anomalies[0].Metric != "price" || body.Anomalies[0].ChangePct != "11.67" {
		t.Fatalf("unexpected anomalies: %+v", body.Anomalies)
	}
}

func TestLatestSummaryPending(t *testing.T) {
	store := newFakeQueryStore()
	price := decimal.NewFromInt(60000)
	_ = store.UpsertRecord(context.Background(), storage.Record{Date: "2025-03-02", Coin: "bitcoin", PriceUSD: &price})

	recorder := getLatest(t, newTestServer(store))
	if recorder.Code != http.StatusOK {
		t.Fatalf("record without summary must still respond 200, got %d", recorder.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("response must be JSON: %v", err)
	}
	if body["summary"] != summaryPending {
		t.Fatalf("missing summary should report pending, got %v", body["summary"])
	}
	if anomalies, ok := body["anomalies"].([]any); !ok || len(anomalies) != 0 {
		t.Fatalf("anomalies must be an empty list, got %v", body["anomalies"])
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(newFakeQueryStore())
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.engine.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz must respond 200, got %d", recorder.Code)
	}
}
