// Package radar derives trend signals from hourly metric snapshots and
// runs the scheduled jobs that keep them fresh.
package radar

import (
	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/stats"
)

const (
	// baselineDeltas is how many trailing deltas form the z-score baseline.
	baselineDeltas = 24
	// sustainSpan is the EMA span for the sustain signal.
	sustainSpan = 6
	// flatBaselineEpsilon stands in for a zero stdev on a real but flat
	// baseline, so the first movement after a flat stretch still scores.
	flatBaselineEpsilon = 1e-6
	minFlatBaseline     = 3
)

// Scores is one derived signal set. Nil fields mean "not computable
// from the available history", never an error. Accel and RankBucket are
// reserved and always nil for now.
type Scores struct {
	DZ         *float64
	Accel      *float64
	Sustain    *float64
	Wilson     *float64
	RankBucket *string
}

// ComputeScores derives trend signals from a chronological window of
// hourly rows, all for one universe. Pure: no I/O, cannot fail.
func ComputeScores(window []store.StatsPoint) Scores {
	// First differences of playing. A pair with a nil side contributes
	// no delta at all, so the sequence is sparse rather than padded
	// with zeros.
	var deltas []float64
	for i := 1; i < len(window); i++ {
		a, b := window[i-1], window[i]
		if a.Playing != nil && b.Playing != nil {
			deltas = append(deltas, float64(*b.Playing-*a.Playing))
		}
	}

	var delta1h *float64
	if len(deltas) > 0 {
		d := deltas[len(deltas)-1]
		delta1h = &d
	}

	// Baseline excludes the delta being scored so a spike cannot
	// contaminate its own reference.
	lo := len(deltas) - 1 - baselineDeltas
	if lo < 0 {
		lo = 0
	}
	hi := len(deltas) - 1
	if hi < 0 {
		hi = 0
	}
	baseline := deltas[lo:hi]

	m := stats.Mean(baseline)
	s := stats.Stdev(baseline)
	if s == 0 && len(baseline) >= minFlatBaseline {
		s = flatBaselineEpsilon
	}

	var dz *float64
	if delta1h != nil && s > 0 {
		v := (*delta1h - m) / s
		dz = &v
	}

	recent := deltas
	if len(recent) > sustainSpan {
		recent = recent[len(recent)-sustainSpan:]
	}
	sustain := stats.EMA(recent, sustainSpan)

	var wilson *float64
	if len(window) > 0 {
		latest := window[len(window)-1]
		if latest.UpVotes != nil && latest.DownVotes != nil {
			w := stats.WilsonScore(*latest.UpVotes, *latest.DownVotes, stats.DefaultZ)
			wilson = &w
		}
	}

	return Scores{DZ: dz, Sustain: &sustain, Wilson: wilson}
}
