package state

import (
	"errors"
	"path/filepath"
	"testing"
)

// 准备一份有代表性的账本：在仓、已平仓、高点记录齐全
func populatedState(t *testing.T) *BotState {
	t.Helper()
	st := New(d("10000"), "BTC", d("0.25"))
	b1, err := st.OpenBasket("BTC", d("0.01"), d("50000"), d("5"), ts(10))
	if err != nil {
		t.Fatalf("open b1: %v", err)
	}
	if _, err := st.OpenBasket("BTC", d("0.02"), d("48000"), d("5"), ts(11)); err != nil {
		t.Fatalf("open b2: %v", err)
	}
	if _, err := st.CloseBasket(b1.ID, d("53000"), ts(12)); err != nil {
		t.Fatalf("close b1: %v", err)
	}
	st.UpdateRecentHigh("BTC", d("53000"))
	return st
}

func assertStatesEqual(t *testing.T, want, got *BotState) {
	t.Helper()
	if !got.FiatBalance.Equal(want.FiatBalance) {
		t.Errorf("fiat mismatch: want %s, got %s", want.FiatBalance, got.FiatBalance)
	}
	if !got.TotalInvested.Equal(want.TotalInvested) {
		t.Errorf("invested mismatch: want %s, got %s", want.TotalInvested, got.TotalInvested)
	}
	if !got.TotalProfit.Equal(want.TotalProfit) {
		t.Errorf("profit mismatch: want %s, got %s", want.TotalProfit, got.TotalProfit)
	}
	if len(got.ActiveBaskets) != len(want.ActiveBaskets) {
		t.Fatalf("active count mismatch: want %d, got %d", len(want.ActiveBaskets), len(got.ActiveBaskets))
	}
	for i := range want.ActiveBaskets {
		if got.ActiveBaskets[i].ID != want.ActiveBaskets[i].ID {
			t.Errorf("active basket %d id mismatch", i)
		}
		if !got.ActiveBaskets[i].Quantity.Equal(want.ActiveBaskets[i].Quantity) {
			t.Errorf("active basket %d quantity mismatch", i)
		}
	}
	if len(got.ClosedBaskets) != len(want.ClosedBaskets) {
		t.Fatalf("closed count mismatch: want %d, got %d", len(want.ClosedBaskets), len(got.ClosedBaskets))
	}
	for i := range want.ClosedBaskets {
		if !got.ClosedBaskets[i].Profit.Equal(want.ClosedBaskets[i].Profit) {
			t.Errorf("closed basket %d profit mismatch", i)
		}
	}
	for sym, high := range want.RecentHighs {
		if !got.RecentHighs[sym].Equal(high) {
			t.Errorf("recent high %s mismatch: want %s, got %s", sym, high, got.RecentHighs[sym])
		}
	}
	for sym, bal := range want.CryptoBalances {
		if !got.CryptoBalances[sym].Equal(bal) {
			t.Errorf("crypto balance %s mismatch: want %s, got %s", sym, bal, got.CryptoBalances[sym])
		}
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot_state.json")
	store := NewFileStore(path)

	want := populatedState(t)
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertStatesEqual(t, want, got)
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	_, err := store.Load()
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path, "test-bot")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	_, err = store.Load()
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound on fresh db, got %v", err)
	}

	want := populatedState(t)
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertStatesEqual(t, want, got)

	// 覆盖保存应整体替换而不是追加
	want.UpdateRecentHigh("BTC", d("60000"))
	if err := store.Save(want); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, err = store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.RecentHighs["BTC"].Equal(d("60000")) {
		t.Errorf("expected replaced snapshot, got high %s", got.RecentHighs["BTC"])
	}
}
