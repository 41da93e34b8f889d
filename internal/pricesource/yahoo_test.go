package pricesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"RELIANCE.NS"},
"timestamp":[1767585600,1767672000,1767758400],
"indicators":{"quote":[{
  "open":[100.0,null,102.0],
  "high":[101.0,null,104.5],
  "low":[99.0,null,101.5],
  "close":[100.5,null,103.25],
  "volume":[1000,null,3000]}]}}],"error":null}}`

func TestYahoo_ParsesBarsAndSkipsNullRows(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()

	bars, err := NewYahoo(srv.URL, time.Second).Fetch(context.Background(), "RELIANCE.NS", 30)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/v8/finance/chart/RELIANCE.NS" {
		t.Errorf("path = %s", gotPath)
	}
	if !strings.Contains(gotQuery, "range=30d") || !strings.Contains(gotQuery, "interval=1d") {
		t.Errorf("query = %s", gotQuery)
	}
	if gotUA == "" {
		t.Error("missing User-Agent")
	}

	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	last := bars[1]
	if last.Close != 103.25 || last.High != 104.5 || last.Low != 101.5 || last.Volume != 3000 {
		t.Errorf("last bar = %+v", last)
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Error("bars not ascending")
	}
}

func TestYahoo_NoData(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"404", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found"}}}`},
		{"chart error", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`},
		{"empty result", http.StatusOK, `{"chart":{"result":[{"timestamp":[],"indicators":{"quote":[{}]}}],"error":null}}`},
		{"all null closes", http.StatusOK, `{"chart":{"result":[{"timestamp":[1],"indicators":{"quote":[{"close":[null]}]}}],"error":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			bars, err := NewYahoo(srv.URL, time.Second).Fetch(context.Background(), "NOPE.NS", 30)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if bars != nil {
				t.Fatalf("bars = %+v, want nil", bars)
			}
		})
	}
}

func TestYahoo_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewYahoo(srv.URL, time.Second).Fetch(context.Background(), "X.NS", 30); err == nil {
		t.Fatal("expected error on 502")
	}
}
