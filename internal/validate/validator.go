// Package validate bounds-checks incoming scan and breadth snapshots before
// they reach any scoring logic. A snapshot with any flagged issue is excluded
// from scoring and logged with its issue list; it is never silently dropped.
// This is the tripwire that catches upstream credential and feed failures,
// such as an expired broker session producing degenerate all-100% breadth.
package validate

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/calendar"
	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
)

// IssueCode identifies one class of data-quality problem.
type IssueCode string

const (
	IssueAll100        IssueCode = "all_100"
	IssuePercentRange  IssueCode = "percent_out_of_range"
	IssueLowStockCount IssueCode = "low_stock_count"
	IssueOffHours      IssueCode = "off_hours"
	IssueWeekend       IssueCode = "weekend"
	IssueImplausible   IssueCode = "implausible_breadth"
	IssueNegativeCount IssueCode = "negative_count"
	IssueNonFinite     IssueCode = "non_finite"
)

// Issue is one flagged problem with enough context to debug the feed.
type Issue struct {
	Code   IssueCode `json:"code"`
	Detail string    `json:"detail"`
}

// Validator applies the plausibility rules. Issue counts are aggregated on
// the prometheus side for the daily data-quality report.
type Validator struct {
	cfg     config.ValidatorConfig
	session *calendar.Session
}

func New(cfg config.ValidatorConfig, session *calendar.Session) *Validator {
	return &Validator{cfg: cfg, session: session}
}

// Scan validates a scan snapshot. The returned snapshot has its derived ratio
// recomputed; validating an already-valid snapshot yields the same snapshot
// with zero issues.
func (v *Validator) Scan(s domain.ScanSnapshot) (domain.ScanSnapshot, []Issue) {
	var issues []Issue

	if s.LongCount < 0 || s.ShortCount < 0 {
		issues = append(issues, Issue{IssueNegativeCount, "negative long/short count"})
	}
	if s.TotalStocks < v.cfg.MinStockCount {
		issues = append(issues, Issue{IssueLowStockCount, "sample population below minimum threshold"})
	}
	issues = append(issues, v.checkClock(s.Timestamp)...)

	s.Ratio = Ratio(s.LongCount, s.ShortCount)

	v.record("scan", issues)
	return s, issues
}

// Breadth validates a breadth snapshot against percentage bounds and the
// degenerate-feed heuristics.
func (v *Validator) Breadth(b domain.BreadthSnapshot, totalStocks int) (domain.BreadthSnapshot, []Issue) {
	var issues []Issue

	for _, pct := range []float64{b.SMA20Percent, b.SMA50Percent, b.VolumeParticipation} {
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			issues = append(issues, Issue{IssueNonFinite, "non-finite breadth percentage"})
			break
		}
	}
	for _, pct := range []float64{b.SMA20Percent, b.SMA50Percent, b.VolumeParticipation} {
		if pct < 0 || pct > 100 {
			issues = append(issues, Issue{IssuePercentRange, "percentage outside [0,100]"})
			break
		}
	}
	if b.SMA20Percent == 100 && b.SMA50Percent == 100 {
		issues = append(issues, Issue{IssueAll100, "both breadth percentages at 100 simultaneously"})
	}
	if totalStocks > 0 && totalStocks < v.cfg.MinStockCount {
		issues = append(issues, Issue{IssueLowStockCount, "sample population below minimum threshold"})
		if b.SMA20Percent == 100 || b.SMA50Percent == 100 {
			issues = append(issues, Issue{IssueImplausible, "100% breadth on a small sample"})
		}
	}
	issues = append(issues, v.checkClock(b.Timestamp)...)

	v.record("breadth", issues)
	return b, issues
}

func (v *Validator) checkClock(ts time.Time) []Issue {
	if v.session.IsWeekend(ts) {
		return []Issue{{IssueWeekend, "timestamp falls on a weekend"}}
	}
	if !v.session.IsOpen(ts) {
		return []Issue{{IssueOffHours, "timestamp outside trading hours"}}
	}
	return nil
}

func (v *Validator) record(kind string, issues []Issue) {
	if len(issues) == 0 {
		return
	}
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, string(is.Code))
		metrics.SnapshotIssues.WithLabelValues(string(is.Code)).Inc()
	}
	metrics.SnapshotsRejected.WithLabelValues(kind).Inc()
	log.Warn().Str("kind", kind).Strs("issues", codes).Msg("Snapshot excluded from scoring")
}

// Ratio derives the long/short ratio with the zero-short edge case mapped to
// a capped bullish value instead of infinity.
func Ratio(longCount, shortCount int) float64 {
	if longCount < 0 {
		longCount = 0
	}
	if shortCount < 0 {
		shortCount = 0
	}
	if shortCount == 0 {
		if longCount == 0 {
			return 1.0
		}
		return zeroShortCap
	}
	return float64(longCount) / float64(shortCount)
}

// zeroShortCap bounds the ratio when no short signals fired at all.
const zeroShortCap = 5.0
