// Package stats computes read-side aggregates over approved receipts:
// period statistics for the dashboard and filtered export datasets for
// the accountant. Everything here is pure computation over its inputs.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/HadassahLevi/tiktax/internal/domain/entity"
)

// DefaultRecentLimit bounds the most-recent list in Statistics
const DefaultRecentLimit = 10

// CategoryStat is the per-category slice of the breakdown
type CategoryStat struct {
	CategoryID string  `json:"category_id"`
	Count      int     `json:"count"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Statistics aggregates an owner's approved receipts
type Statistics struct {
	TotalCount  int     `json:"total_count"`
	TotalAmount float64 `json:"total_amount"`
	TotalVAT    float64 `json:"total_vat"`

	CurrentPeriodCount  int     `json:"current_period_count"`
	CurrentPeriodAmount float64 `json:"current_period_amount"`
	PriorPeriodCount    int     `json:"prior_period_count"`
	PriorPeriodAmount   float64 `json:"prior_period_amount"`

	Categories []CategoryStat    `json:"categories"`
	Recent     []*entity.Receipt `json:"recent"`
}

// ComputeStatistics aggregates the given approved records. The current
// period is the calendar month containing now; the prior period is the
// month before it. Category percentages are shares of total amount and
// sum to 100 within rounding; a zero total yields 0 for every category.
func ComputeStatistics(records []*entity.Receipt, now time.Time, recentLimit int) Statistics {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	curStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	priorStart := curStart.AddDate(0, -1, 0)

	stats := Statistics{}
	byCategory := make(map[string]*CategoryStat)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		stats.TotalCount++
		stats.TotalAmount += rec.TotalAmount
		stats.TotalVAT += rec.VATAmount

		if rec.Date != nil {
			switch {
			case !rec.Date.Before(curStart):
				stats.CurrentPeriodCount++
				stats.CurrentPeriodAmount += rec.TotalAmount
			case !rec.Date.Before(priorStart):
				stats.PriorPeriodCount++
				stats.PriorPeriodAmount += rec.TotalAmount
			}
		}

		cs, ok := byCategory[rec.CategoryID]
		if !ok {
			cs = &CategoryStat{CategoryID: rec.CategoryID}
			byCategory[rec.CategoryID] = cs
		}
		cs.Count++
		cs.Amount += rec.TotalAmount
	}

	stats.Categories = make([]CategoryStat, 0, len(byCategory))
	for _, cs := range byCategory {
		if stats.TotalAmount > 0 {
			cs.Percentage = round2(cs.Amount / stats.TotalAmount * 100)
		}
		stats.Categories = append(stats.Categories, *cs)
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		if stats.Categories[i].Amount != stats.Categories[j].Amount {
			return stats.Categories[i].Amount > stats.Categories[j].Amount
		}
		return stats.Categories[i].CategoryID < stats.Categories[j].CategoryID
	})

	stats.Recent = mostRecent(records, recentLimit)
	return stats
}

// mostRecent returns up to limit records ordered by transaction date
// descending; undated records sort last.
func mostRecent(records []*entity.Receipt, limit int) []*entity.Receipt {
	sorted := make([]*entity.Receipt, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].Date, sorted[j].Date
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
