package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/model"
)

// DateLayout is the date format used in directory and file names (no zero padding)
const DateLayout = "2006-1-2"

// FormatDate renders t in DateLayout
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a DateLayout date; zero-padded dates are accepted too
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q (want YYYY-M-D): %w", s, err)
	}
	return t, nil
}

// Layout resolves raw dump paths:
// <root>/<date>/<marketplace>_<locale>_kwf<n>lets_<date>.csv
type Layout struct {
	Root        string
	Marketplace string
	Locale      string
	Logger      *zap.Logger
}

// NewLayout validates marketplace and locale before any file is touched
func NewLayout(root, marketplace, locale string, logger *zap.Logger) (*Layout, error) {
	if err := model.ValidateMarketplace(marketplace); err != nil {
		return nil, err
	}
	if _, err := model.LookupLocale(locale); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layout{Root: root, Marketplace: marketplace, Locale: locale, Logger: logger}, nil
}

// DayDir returns the directory of one harvest day
func (l *Layout) DayDir(date time.Time) string {
	return filepath.Join(l.Root, FormatDate(date))
}

// RawPath returns the raw dump path of a day and seed length
func (l *Layout) RawPath(date time.Time, seedLength int) string {
	d := FormatDate(date)
	name := fmt.Sprintf("%s_%s_kwf%dlets_%s.csv", l.Marketplace, l.Locale, seedLength, d)
	return filepath.Join(l.Root, d, name)
}

// ReadLines reads a raw dump into lines
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}

// LoadDay reads and cleans one day's dump for a seed length. Malformed
// rows are logged and skipped.
func (l *Layout) LoadDay(date time.Time, seedLength int) (model.Snapshot, error) {
	if err := model.ValidateSeedLength(seedLength); err != nil {
		return model.Snapshot{}, err
	}

	path := l.RawPath(date, seedLength)
	lines, err := ReadLines(path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("load %s: %w", FormatDate(date), err)
	}

	cleaned, err := Clean(lines, seedLength)
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, m := range cleaned.Malformed {
		l.Logger.Warn("skipping malformed row",
			zap.String("file", path),
			zap.Int("line", m.Line),
			zap.String("reason", m.Reason))
	}

	return model.Snapshot{Date: date, SeedLength: seedLength, Rows: cleaned.Rows}, nil
}

// DayKeywords returns the normalized keywords of one day across the seed
// lengths that have a dump, in 2-, 3-, 4-letter order. Duplicates across
// lengths are kept. Missing lengths are logged; a day without any dump
// fails with an error matching os.ErrNotExist.
func (l *Layout) DayKeywords(date time.Time) ([]string, error) {
	var (
		keywords []string
		found    int
	)
	for _, n := range model.SeedLengths {
		snap, err := l.LoadDay(date, n)
		if errors.Is(err, os.ErrNotExist) {
			l.Logger.Debug("no dump for seed length", zap.String("date", FormatDate(date)), zap.Int("seed_length", n))
			continue
		}
		if err != nil {
			return nil, err
		}
		found++
		for _, row := range snap.Rows {
			keywords = append(keywords, NormalizeKeyword(row.Keyword))
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("load %s: no dump for any seed length: %w", FormatDate(date), os.ErrNotExist)
	}
	return keywords, nil
}
