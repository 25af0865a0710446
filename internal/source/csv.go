package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"breakout-backtest/internal/interfaces"
	"breakout-backtest/internal/logger"
	"breakout-backtest/internal/types"
)

// CSV reads <dir>/<SYMBOL>.csv files with a date,open,high,low,close[,volume]
// header. UTF-8 and UTF-16 files with a BOM are accepted.
type CSV struct {
	dir string
}

var _ interfaces.BarSource = (*CSV)(nil)

func NewCSV(dir string) *CSV { return &CSV{dir: dir} }

func (c *CSV) Name() string { return "csv" }

type csvRow struct {
	Date   string `csv:"date"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume string `csv:"volume"`
}

var headerAliases = map[string]string{
	"timestamp":    "date",
	"timestamp_ms": "date",
	"time":         "date",
	"datetime":     "date",
	"trade_date":   "date",
	"vol":          "volume",
}

func (c *CSV) Bars(ctx context.Context, symbol string, from, to time.Time) ([]types.Bar, error) {
	path, err := c.find(symbol)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, skipped, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if skipped > 0 {
		logger.Warn(ctx, "Skipped malformed CSV rows", "symbol", symbol, "path", path, "skipped", skipped)
	}

	bars = normalize(bars, from, to)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", symbol, path, ErrNoData)
	}
	return bars, nil
}

// find resolves the file for symbol, falling back to a case-insensitive match.
func (c *CSV) find(symbol string) (string, error) {
	path := filepath.Join(c.dir, symbol+".csv")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return "", fmt.Errorf("read csv dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), symbol+".csv") {
			return filepath.Join(c.dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s: no csv file in %s: %w", symbol, c.dir, ErrNoData)
}

// ReadCSV decodes bars from r. Rows that do not parse are counted in skipped.
func ReadCSV(r io.Reader) (bars []types.Bar, skipped int, err error) {
	br := bufio.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))

	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	if strings.TrimSpace(header) == "" {
		return nil, 0, nil
	}

	var rows []csvRow
	in := io.MultiReader(strings.NewReader(normalizeHeader(header)+"\n"), br)
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, 0, err
	}

	bars = make([]types.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := row.bar()
		if err != nil || !valid(b) {
			skipped++
			continue
		}
		bars = append(bars, b)
	}
	return bars, skipped, nil
}

func normalizeHeader(line string) string {
	cols := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	for i, col := range cols {
		col = strings.ToLower(strings.Trim(strings.TrimSpace(col), `"`))
		col = strings.TrimPrefix(col, "\ufeff")
		if alias, ok := headerAliases[col]; ok {
			col = alias
		}
		cols[i] = col
	}
	return strings.Join(cols, ",")
}

func (row csvRow) bar() (types.Bar, error) {
	ts, err := parseTime(row.Date)
	if err != nil {
		return types.Bar{}, err
	}
	var vals [5]float64
	for i, s := range []string{row.Open, row.High, row.Low, row.Close, row.Volume} {
		s = strings.TrimSpace(s)
		if s == "" && i == 4 {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return types.Bar{}, err
		}
		vals[i] = d.InexactFloat64()
	}
	return types.Bar{Ts: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Vol: vals[4]}, nil
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"20060102",
}

// parseTime accepts the layouts above, unix seconds and unix milliseconds.
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) != 8 {
		if n > 1e12 {
			return n / 1000, nil
		}
		return n, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised time %q", s)
}
