package logger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func cycleAt(ts time.Time) *CycleRecord {
	return &CycleRecord{
		Timestamp:      ts,
		Prices:         map[string]decimal.Decimal{"BTC": decimal.NewFromInt(50000)},
		FearGreedValue: 40,
		FearGreedClass: "Fear",
		Actions:        []BasketAction{},
		FiatBalance:    decimal.NewFromInt(10000),
	}
}

func TestTradeLoggerCycleNumbering(t *testing.T) {
	tl := NewTradeLogger(t.TempDir())
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := tl.LogCycle(cycleAt(start.Add(time.Duration(i) * time.Hour))); err != nil {
			t.Fatalf("LogCycle %d: %v", i, err)
		}
	}

	records, err := tl.LatestRecords(0)
	if err != nil {
		t.Fatalf("LatestRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.CycleNumber != i+1 {
			t.Errorf("record %d cycle number = %d, want %d", i, rec.CycleNumber, i+1)
		}
	}
}

func TestTradeLoggerLatestRecordsLimit(t *testing.T) {
	tl := NewTradeLogger(t.TempDir())
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := tl.LogCycle(cycleAt(start.Add(time.Duration(i) * time.Hour))); err != nil {
			t.Fatalf("LogCycle %d: %v", i, err)
		}
	}

	records, err := tl.LatestRecords(2)
	if err != nil {
		t.Fatalf("LatestRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	// 限量时取最近的，仍按从旧到新排列
	if records[0].CycleNumber != 4 || records[1].CycleNumber != 5 {
		t.Errorf("cycle numbers = %d,%d, want 4,5", records[0].CycleNumber, records[1].CycleNumber)
	}
}

func TestTradeLoggerResumeFromCheckpoint(t *testing.T) {
	tl := NewTradeLogger(t.TempDir())
	tl.SetCycleNumber(41)

	rec := cycleAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := tl.LogCycle(rec); err != nil {
		t.Fatalf("LogCycle: %v", err)
	}
	if rec.CycleNumber != 42 {
		t.Errorf("cycle number = %d, want 42", rec.CycleNumber)
	}
}
