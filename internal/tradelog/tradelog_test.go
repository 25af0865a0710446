package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"breakout-backtest/internal/backtest"
	"breakout-backtest/internal/types"
)

func sampleResult(runID string) *backtest.Result {
	return &backtest.Result{
		RunID:   runID,
		Request: backtest.Request{Symbol: "INFY", Variant: "atr"},
		Outcome: &types.Outcome{
			Records: []types.TradeRecord{
				{Ts: 1704153600, Index: 1, Side: types.SideBuy, Price: 10, Shares: 5, Reason: types.ReasonBreakout},
				{Ts: 1704240000, Index: 2, Side: types.SideSell, Price: 9, Shares: 5, Reason: types.ReasonContainmentBreak},
			},
			Steps: []types.StepResult{
				{Index: 0},
				{Index: 1, Action: types.ActionBuy},
				{Index: 2, Action: types.ActionSell, Fired: []string{types.ReasonContainmentBreak, types.ReasonTrailingATR}},
			},
		},
	}
}

func TestEntries(t *testing.T) {
	entries := Entries(sampleResult("r1"))
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Date != "2024-01-02" || entries[0].Fired != nil {
		t.Errorf("Unexpected buy entry %+v", entries[0])
	}
	if len(entries[1].Fired) != 2 || entries[1].Reason != types.ReasonContainmentBreak {
		t.Errorf("Expected both fired stops on the sell, got %+v", entries[1])
	}
	if Entries(&backtest.Result{}) != nil {
		t.Error("Expected no entries for a run without outcome")
	}
}

func TestAppendConcurrent(t *testing.T) {
	dir := t.TempDir()

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := Append(dir, sampleResult("r"))
			if err != nil {
				t.Error(err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 16 {
		t.Errorf("Expected 16 lines, got %d", lines)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	p, err := Append(dir, sampleResult("old"))
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, "fresh.jsonl")
	if err := os.WriteFile(fresh, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(dir, 3); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}
	if _, err := os.Stat(p + ".gz"); err != nil {
		t.Errorf("Expected compressed log: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("Expected original log to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Expected recent log to be kept")
	}
}

func TestDir(t *testing.T) {
	t.Setenv("BACKTEST_LOG_DIR", "")
	if Dir("reports/trades") != "reports/trades" {
		t.Error("Expected fallback directory")
	}
	t.Setenv("BACKTEST_LOG_DIR", "/tmp/x")
	if Dir("reports/trades") != "/tmp/x" {
		t.Error("Expected env override")
	}
}
