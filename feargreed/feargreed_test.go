package feargreed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Current(t *testing.T) {
	t.Run("parses alternative.me payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"value":"22","value_classification":"Extreme Fear","timestamp":"1709294400"}]}`))
		}))
		defer srv.Close()

		idx, err := NewClient(srv.URL).Current(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if idx.Value != 22 {
			t.Errorf("expected value 22, got %d", idx.Value)
		}
		if idx.Classification != "Extreme Fear" {
			t.Errorf("expected Extreme Fear, got %s", idx.Classification)
		}
		if !idx.Timestamp.Equal(time.Unix(1709294400, 0).UTC()) {
			t.Errorf("expected timestamp from payload, got %v", idx.Timestamp)
		}
	})

	t.Run("server error maps to ErrSentimentUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Current(context.Background())
		if !errors.Is(err, ErrSentimentUnavailable) {
			t.Fatalf("expected ErrSentimentUnavailable, got %v", err)
		}
	})

	t.Run("empty data maps to ErrSentimentUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Current(context.Background())
		if !errors.Is(err, ErrSentimentUnavailable) {
			t.Fatalf("expected ErrSentimentUnavailable, got %v", err)
		}
	})
}

func TestClient_History(t *testing.T) {
	t.Run("returns ascending series", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "3" {
				t.Errorf("expected limit=3, got %q", got)
			}
			// 接口按从新到旧返回
			w.Write([]byte(`{"data":[
				{"value":"60","value_classification":"Greed","timestamp":"1709467200"},
				{"value":"40","value_classification":"Fear","timestamp":"1709380800"},
				{"value":"22","value_classification":"Extreme Fear","timestamp":"1709294400"}
			]}`))
		}))
		defer srv.Close()

		series, err := NewClient(srv.URL).History(context.Background(), 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(series) != 3 {
			t.Fatalf("expected 3 points, got %d", len(series))
		}
		if series[0].Value != 22 || series[2].Value != 60 {
			t.Errorf("series not ascending by time: %d..%d", series[0].Value, series[2].Value)
		}
	})

	t.Run("unparseable entries skipped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[
				{"value":"nope","value_classification":"Fear","timestamp":"1709380800"},
				{"value":"22","value_classification":"Extreme Fear","timestamp":"1709294400"}
			]}`))
		}))
		defer srv.Close()

		series, err := NewClient(srv.URL).History(context.Background(), 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(series) != 1 || series[0].Value != 22 {
			t.Fatalf("expected single valid point, got %+v", series)
		}
	})
}

func TestFallback(t *testing.T) {
	idx := Fallback()
	if idx.Value != 35 || idx.Classification != "Fear" {
		t.Errorf("expected neutral-fear default (35, Fear), got (%d, %s)", idx.Value, idx.Classification)
	}
}

func TestSeries_Nearest(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := Series{
		{Value: 10, Timestamp: base},
		{Value: 20, Timestamp: base.Add(2 * time.Hour)},
		{Value: 30, Timestamp: base.Add(4 * time.Hour)},
	}

	t.Run("nil for empty series", func(t *testing.T) {
		if got := (Series{}).Nearest(base); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("picks minimum time distance", func(t *testing.T) {
		got := series.Nearest(base.Add(3*time.Hour + 30*time.Minute))
		if got.Value != 30 {
			t.Errorf("expected value 30, got %d", got.Value)
		}
	})

	t.Run("tie breaks toward earlier timestamp", func(t *testing.T) {
		got := series.Nearest(base.Add(time.Hour)) // 与两侧读数各差 1h
		if got.Value != 10 {
			t.Errorf("expected earlier reading (10), got %d", got.Value)
		}
	})

	t.Run("sparser sentiment reused across ticks", func(t *testing.T) {
		for _, offset := range []time.Duration{0, 15 * time.Minute, 45 * time.Minute} {
			got := series.Nearest(base.Add(offset))
			if got.Value != 10 {
				t.Errorf("offset %v: expected reused reading 10, got %d", offset, got.Value)
			}
		}
	})
}
