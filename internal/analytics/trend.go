package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// MaxEpochSeconds bounds Time values that convert to a calendar date.
const MaxEpochSeconds = 9.2e9

// BuildTrend groups rows by the UTC date of their Time value and returns the
// mean prediction per date in ascending order. It returns nil when the table
// has no uploaded Time column. Rows whose Time cannot be converted are excluded and
// counted.
func BuildTrend(t *domain.ScoredTable) *domain.Trend {
	idx := t.UploadedIndex(domain.ColumnTime)
	if idx < 0 {
		return nil
	}

	type bucket struct {
		flagged int
		total   int
	}
	buckets := make(map[time.Time]*bucket)
	trend := &domain.Trend{}

	for _, r := range t.Rows {
		date, ok := epochDate(r.Values[idx])
		if !ok {
			trend.ExcludedRows++
			continue
		}
		b, exists := buckets[date]
		if !exists {
			b = &bucket{}
			buckets[date] = b
		}
		b.total++
		if r.Prediction == 1 {
			b.flagged++
		}
	}

	trend.Points = make([]domain.TrendPoint, 0, len(buckets))
	for date, b := range buckets {
		trend.Points = append(trend.Points, domain.TrendPoint{
			Date:         date,
			FraudRate:    float64(b.flagged) / float64(b.total),
			Transactions: b.total,
		})
	}
	sort.Slice(trend.Points, func(i, j int) bool {
		return trend.Points[i].Date.Before(trend.Points[j].Date)
	})
	return trend
}

// epochDate converts a seconds-since-epoch cell to midnight UTC of its date.
func epochDate(cell string) (time.Time, bool) {
	secs, ok := ParseNumber(cell)
	if !ok || math.Abs(secs) > MaxEpochSeconds {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	ts := time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), true
}
