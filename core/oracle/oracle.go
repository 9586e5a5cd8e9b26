// Package oracle resolves USD prices for supported currencies at a given
// time. Grounded on the teacher's core/quorum_tracker.go singleton-registry
// pattern (a mutex-guarded map with a small, well-defined read/write API)
// adapted here to a time-indexed price series instead of vote tallies.
package oracle

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// Point is one (time, usd price) sample.
type Point struct {
	TimeMS int64
	USD    float64
}

// Default staleness windows per spec.md §4.1.
const (
	DailyStaleness = 24 * time.Hour
	LiveStaleness  = 5 * time.Minute
)

// Oracle holds a per-currency, time-sorted price history plus a live-tick
// cache. All methods are safe for concurrent use.
type Oracle struct {
	mu      sync.RWMutex
	history map[types.Currency][]Point // kept sorted ascending by TimeMS
	live    map[types.Currency]livePoint
	log     *logrus.Entry
}

type livePoint struct {
	point     Point
	fetchedAt time.Time
}

// New constructs an empty Oracle.
func New() *Oracle {
	return &Oracle{
		history: make(map[types.Currency][]Point),
		live:    make(map[types.Currency]livePoint),
		log:     logrus.WithField("component", "oracle"),
	}
}

// LoadDailyHistory replaces the stored daily history for a currency. Called
// on startup and periodically by the driver.
func (o *Oracle) LoadDailyHistory(c types.Currency, points []Point) {
	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimeMS < sorted[j].TimeMS })

	o.mu.Lock()
	o.history[c] = sorted
	o.mu.Unlock()
	o.log.WithFields(logrus.Fields{"currency": c.String(), "points": len(sorted)}).Info("loaded daily price history")
}

// RecordLiveTick updates the live-tick cache for a currency.
func (o *Oracle) RecordLiveTick(c types.Currency, usd float64, at time.Time) {
	o.mu.Lock()
	o.live[c] = livePoint{point: Point{TimeMS: at.UnixMilli(), USD: usd}, fetchedAt: at}
	o.mu.Unlock()
}

// Price returns the most recent known price at or before t, preferring a
// non-stale live tick over history. Fails with a Consensus-kind
// "price unavailable" error (priceUnavailable) if no data point exists
// within the staleness window.
func (o *Oracle) Price(c types.Currency, t time.Time) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if lp, ok := o.live[c]; ok && lp.point.TimeMS <= t.UnixMilli() {
		if t.Sub(time.UnixMilli(lp.point.TimeMS)) <= LiveStaleness {
			return lp.point.USD, nil
		}
	}

	hist := o.history[c]
	idx := sort.Search(len(hist), func(i int) bool { return hist[i].TimeMS > t.UnixMilli() }) - 1
	if idx < 0 {
		return 0, priceUnavailable(c, t)
	}
	p := hist[idx]
	if t.Sub(time.UnixMilli(p.TimeMS)) > DailyStaleness {
		return 0, priceUnavailable(c, t)
	}
	return p.USD, nil
}

// MaxTimePriceBy returns the most recent price at or before upperBound,
// ignoring staleness (used for historical replay where the caller already
// knows the data point is the authoritative one for that epoch).
func (o *Oracle) MaxTimePriceBy(c types.Currency, upperBoundMS int64) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	hist := o.history[c]
	idx := sort.Search(len(hist), func(i int) bool { return hist[i].TimeMS > upperBoundMS }) - 1
	if idx < 0 {
		return 0, false
	}
	return hist[idx].USD, true
}

func priceUnavailable(c types.Currency, t time.Time) error {
	return partyerr.New(partyerr.KindConsensus, "price unavailable").
		WithDetail("currency", c.String()).
		WithDetail("requested_time_ms", t.UnixMilli())
}
