package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/kwharvest/internal/snapshot"
)

// SecondBucketDay is the first day of the second half-month bucket
const SecondBucketDay = 15

// DayCache stores one day's keyword list. *cache.LayeredCache satisfies it.
type DayCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
}

// Accumulator appends newly seen keywords to the ledger of the current
// half-month bucket
type Accumulator struct {
	layout    *snapshot.Layout
	stopwords map[string]bool
	cache     DayCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// Option configures an Accumulator
type Option func(*Accumulator)

// WithCache keeps past days' keyword lists in c. Without it every run
// re-reads and re-cleans every earlier day of the bucket.
func WithCache(c DayCache, ttl time.Duration) Option {
	return func(a *Accumulator) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Accumulator) {
		a.logger = l
	}
}

// NewAccumulator creates an accumulator over the dumps of layout
func NewAccumulator(layout *snapshot.Layout, stopwords map[string]bool, opts ...Option) *Accumulator {
	a := &Accumulator{
		layout:    layout,
		stopwords: stopwords,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BucketStart returns the first day of the half-month bucket containing t
func BucketStart(t time.Time) time.Time {
	day := 1
	if t.Day() >= SecondBucketDay {
		day = SecondBucketDay
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, t.Location())
}

// LedgerPath returns <root>/<bucket start>/googletrends/googletrends_keywords.csv
func (a *Accumulator) LedgerPath(today time.Time) string {
	return filepath.Join(a.layout.Root, snapshot.FormatDate(BucketStart(today)), "googletrends", "googletrends_keywords.csv")
}

// Result summarizes one Record run
type Result struct {
	Bucket      time.Time
	LedgerPath  string
	HistoryDays int
	MissingDays []time.Time
	New         []string // truncated new keywords
	Appended    []string // the subset actually written
}

// Record compares today's keywords with every earlier day of the bucket
// and appends the new ones to the bucket's ledger
func (a *Accumulator) Record(today time.Time) (*Result, error) {
	todayKeywords, err := a.layout.DayKeywords(today)
	if err != nil {
		return nil, fmt.Errorf("today's keywords: %w", err)
	}

	res := &Result{
		Bucket:     BucketStart(today),
		LedgerPath: a.LedgerPath(today),
	}

	var history []string
	for day := res.Bucket; day.Day() < today.Day(); day = day.AddDate(0, 0, 1) {
		keywords, err := a.dayKeywords(day)
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("no dump for history day, skipping", zap.String("date", snapshot.FormatDate(day)))
			res.MissingDays = append(res.MissingDays, day)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", snapshot.FormatDate(day), err)
		}
		history = append(history, keywords...)
		res.HistoryDays++
	}

	res.New = NewKeywords(todayKeywords, history, a.stopwords)

	added, err := Open(res.LedgerPath).Append(res.New)
	if err != nil {
		return nil, err
	}
	res.Appended = added

	a.logger.Info("recorded new keywords",
		zap.String("ledger", res.LedgerPath),
		zap.Int("history_days", res.HistoryDays),
		zap.Int("new", len(res.New)),
		zap.Int("appended", len(res.Appended)))

	return res, nil
}

func (a *Accumulator) dayKeywords(day time.Time) ([]string, error) {
	if a.cache == nil {
		return a.layout.DayKeywords(day)
	}

	key := fmt.Sprintf("%s:%s:%s", a.layout.Marketplace, a.layout.Locale, snapshot.FormatDate(day))
	if data, ok := a.cache.Get(key); ok {
		var keywords []string
		if err := json.Unmarshal(data, &keywords); err == nil {
			return keywords, nil
		}
	}

	keywords, err := a.layout.DayKeywords(day)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(keywords); err == nil {
		if err := a.cache.Set(key, data, a.cacheTTL); err != nil {
			a.logger.Warn("history cache write failed", zap.Error(err))
		}
	}
	return keywords, nil
}
