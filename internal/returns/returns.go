// Package returns computes close-to-close return series from daily bars.
package returns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// Frequencies supported by Compute.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// Compute derives the return series for one symbol at the given frequency.
// Bars without a close are skipped; fewer than two usable closes yields an
// empty series. Returns are rounded to six decimals and paired with the
// cumulative compounded return up to that observation.
func Compute(symbol string, points []stocks.PricePoint, frequency string) ([]stocks.ReturnPoint, error) {
	switch frequency {
	case FreqDaily, FreqWeekly, FreqMonthly:
	default:
		return nil, fmt.Errorf("unsupported frequency %q", frequency)
	}

	closes := usableCloses(points)
	if frequency != FreqDaily {
		closes = resample(closes, frequency)
	}
	if len(closes) < 2 {
		return nil, nil
	}

	out := make([]stocks.ReturnPoint, 0, len(closes)-1)
	cumulative := 1.0
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1].close
		if prev == 0 {
			continue
		}
		r := closes[i].close/prev - 1
		cumulative *= 1 + r
		out = append(out, stocks.ReturnPoint{
			Symbol:     symbol,
			Date:       closes[i].date,
			Frequency:  frequency,
			Return:     round6(r),
			Cumulative: round6(cumulative - 1),
		})
	}
	return out, nil
}

type closeBar struct {
	date  time.Time
	close float64
}

func usableCloses(points []stocks.PricePoint) []closeBar {
	bars := make([]closeBar, 0, len(points))
	for _, p := range points {
		if p.Close == nil {
			continue
		}
		bars = append(bars, closeBar{date: p.Date, close: *p.Close})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].date.Before(bars[j].date) })
	return bars
}

// resample keeps the last close of each calendar bucket, labeled with the
// date of that last observation.
func resample(bars []closeBar, frequency string) []closeBar {
	out := make([]closeBar, 0, len(bars))
	var lastKey string
	for _, bar := range bars {
		key := bucketKey(bar.date, frequency)
		if key == lastKey && len(out) > 0 {
			out[len(out)-1] = bar
			continue
		}
		out = append(out, bar)
		lastKey = key
	}
	return out
}

func bucketKey(date time.Time, frequency string) string {
	if frequency == FreqWeekly {
		year, week := date.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return date.Format("2006-01")
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
