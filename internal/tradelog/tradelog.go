package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"breakout-backtest/internal/backtest"
)

var mu sync.Mutex

type Entry struct {
	RunID   string   `json:"run_id"`
	Symbol  string   `json:"symbol"`
	Variant string   `json:"variant,omitempty"`
	Date    string   `json:"date"`
	Index   int      `json:"index"`
	Side    string   `json:"side"`
	Price   float64  `json:"price"`
	Shares  float64  `json:"shares"`
	Reason  string   `json:"reason"`
	Fired   []string `json:"fired,omitempty"`
}

// Dir resolves the trade log directory, BACKTEST_LOG_DIR taking precedence.
func Dir(fallback string) string {
	if v := os.Getenv("BACKTEST_LOG_DIR"); v != "" {
		return v
	}
	return fallback
}

func dailyFilepath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006-01-02")+".jsonl")
}

// Entries flattens the trade records of a run. Runs that produced no
// outcome yield nothing.
func Entries(res *backtest.Result) []Entry {
	if res.Outcome == nil {
		return nil
	}
	out := res.Outcome
	entries := make([]Entry, 0, len(out.Records))
	for _, r := range out.Records {
		e := Entry{
			RunID:   res.RunID,
			Symbol:  res.Request.Symbol,
			Variant: res.Request.Variant,
			Date:    time.Unix(r.Ts, 0).UTC().Format(time.DateOnly),
			Index:   r.Index,
			Side:    string(r.Side),
			Price:   r.Price,
			Shares:  r.Shares,
			Reason:  r.Reason,
		}
		if r.Index < len(out.Steps) {
			e.Fired = out.Steps[r.Index].Fired
		}
		entries = append(entries, e)
	}
	return entries
}

// Append writes every trade of res as one JSON line to today's file in dir
// and returns the file path. Safe for concurrent runs.
func Append(dir string, res *backtest.Result) (string, error) {
	entries := Entries(res)
	p := dailyFilepath(dir, time.Now())
	if len(entries) == 0 {
		return p, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintln(f, string(b)); err != nil {
			return "", err
		}
	}
	return p, f.Close()
}

// CompressOlder gzips trade logs in dir older than retentionDays.
func CompressOlder(dir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed on an earlier pass
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			_ = os.Remove(gz)
			return err
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return out.Close()
}
