// Package controls computes per-wrapper indicator means and consistency
// metrics from scored generations.
//
// Every metric is a *float64 and is nil when its inputs are absent, so a
// missing signal is never confused with a zero effect.
package controls

import (
	"log/slog"
	"math"
	"slices"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
)

// WrapperSplit groups scores of one wrapper within one split.
type WrapperSplit struct {
	Wrapper string
	Split   battery.Split
}

// PairKey groups scores of one wrapper sharing a pairing key.
type PairKey struct {
	Wrapper string
	Pair    string
}

// Groups is the explicit fold of a score set into the keyed buckets every
// metric reads from.
type Groups struct {
	// Wrappers lists every wrapper id observed, sorted.
	Wrappers []string

	Indicator     map[WrapperSplit][]float64
	TaskPasses    map[string][]bool
	Probabilities map[string]map[string][]float64
	Framing       map[string]map[string][]float64
	Answers       map[string]map[string][]bool
	// ContradictionPairs counts every distinct pairing key seen in the
	// contradiction split per wrapper, answered or not.
	ContradictionPairs map[string]map[string]bool
}

// Group folds scores into Groups. Scores without a pairing key never take
// part in pairwise metrics.
func Group(scores []scorer.Score) *Groups {
	g := &Groups{
		Indicator:          make(map[WrapperSplit][]float64),
		TaskPasses:         make(map[string][]bool),
		Probabilities:      make(map[string]map[string][]float64),
		Framing:            make(map[string]map[string][]float64),
		Answers:            make(map[string]map[string][]bool),
		ContradictionPairs: make(map[string]map[string]bool),
	}

	seen := make(map[string]bool)
	for _, s := range scores {
		if s.WrapperID == "" || s.Split == "" {
			continue
		}
		if !seen[s.WrapperID] {
			seen[s.WrapperID] = true
			g.Wrappers = append(g.Wrappers, s.WrapperID)
		}

		if s.IndicatorScore != nil {
			key := WrapperSplit{Wrapper: s.WrapperID, Split: s.Split}
			g.Indicator[key] = append(g.Indicator[key], *s.IndicatorScore)
		}

		switch s.Split {
		case battery.SplitControlTaskCompetence:
			if s.ControlTaskPass != nil {
				g.TaskPasses[s.WrapperID] = append(g.TaskPasses[s.WrapperID], *s.ControlTaskPass)
			}
		case battery.SplitControlParaphrase:
			if s.PairID != "" && s.Probability != nil {
				appendPair(g.Probabilities, PairKey{s.WrapperID, s.PairID}, *s.Probability)
			}
		case battery.SplitControlFraming:
			if s.PairID != "" && s.IndicatorScore != nil {
				appendPair(g.Framing, PairKey{s.WrapperID, s.PairID}, *s.IndicatorScore)
			}
		case battery.SplitControlContradiction:
			if s.PairID == "" {
				continue
			}
			if g.ContradictionPairs[s.WrapperID] == nil {
				g.ContradictionPairs[s.WrapperID] = make(map[string]bool)
			}
			g.ContradictionPairs[s.WrapperID][s.PairID] = true
			if s.ContradictionAnswer != nil {
				appendPair(g.Answers, PairKey{s.WrapperID, s.PairID}, *s.ContradictionAnswer)
			}
		}
	}

	slices.Sort(g.Wrappers)
	return g
}

func appendPair[T any](m map[string]map[string][]T, key PairKey, v T) {
	if m[key.Wrapper] == nil {
		m[key.Wrapper] = make(map[string][]T)
	}
	m[key.Wrapper][key.Pair] = append(m[key.Wrapper][key.Pair], v)
}

// Metrics holds every per-wrapper metric of a run.
type Metrics struct {
	TrainMean             *float64
	EvalMean              *float64
	TaskPassRate          *float64
	ParaphraseSpread      *float64
	FramingSpread         *float64
	ContradictionRate     *float64
	ContradictionCoverage *float64
	StyleShiftDelta       *float64
}

// Metrics computes all metrics for wrapper. lineage resolves style-shift
// siblings among the observed wrappers.
func (g *Groups) Metrics(wrapper string, lineage battery.LineageIndex) Metrics {
	m := Metrics{
		TrainMean:        g.IndicatorMean(wrapper, battery.SplitTrainIndicator),
		EvalMean:         g.IndicatorMean(wrapper, battery.SplitEvalIndicator),
		TaskPassRate:     PassRate(g.TaskPasses[wrapper]),
		ParaphraseSpread: MeanSpread(g.Probabilities[wrapper]),
		FramingSpread:    MeanSpread(g.Framing[wrapper]),
		StyleShiftDelta:  g.StyleShift(wrapper, lineage),
	}
	m.ContradictionRate, m.ContradictionCoverage = Inconsistency(wrapper, g.Answers[wrapper], len(g.ContradictionPairs[wrapper]))
	return m
}

// IndicatorMean is the mean aggregate indicator score of wrapper in split.
func (g *Groups) IndicatorMean(wrapper string, split battery.Split) *float64 {
	return Mean(g.Indicator[WrapperSplit{Wrapper: wrapper, Split: split}])
}

// StyleShift is the mean |sibling eval mean - base eval mean| over the
// style-shifted siblings of base. It is nil for wrappers that are
// themselves style variants, and when no sibling can be compared.
func (g *Groups) StyleShift(base string, lineage battery.LineageIndex) *float64 {
	if l := lineage.Lookup(base); l != nil && l.Transform == battery.TransformStyle {
		return nil
	}
	baseMean := g.IndicatorMean(base, battery.SplitEvalIndicator)
	if baseMean == nil {
		return nil
	}

	var deltas []float64
	for _, id := range g.Wrappers {
		l := lineage.Lookup(id)
		if l == nil || l.Transform != battery.TransformStyle || l.Parent != base {
			continue
		}
		if sib := g.IndicatorMean(id, battery.SplitEvalIndicator); sib != nil {
			deltas = append(deltas, math.Abs(*sib-*baseMean))
		}
	}
	return Mean(deltas)
}

// Mean returns the arithmetic mean, or nil for no values.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &mean
}

// PassRate is the share of true values, or nil for no values.
func PassRate(passes []bool) *float64 {
	values := make([]float64, 0, len(passes))
	for _, p := range passes {
		if p {
			values = append(values, 1)
		} else {
			values = append(values, 0)
		}
	}
	return Mean(values)
}

// MeanSpread averages max-min over the pairing keys holding at least two
// values. Keys with fewer values are excluded, not counted as zero.
func MeanSpread(byPair map[string][]float64) *float64 {
	var spreads []float64
	for _, values := range byPair {
		if len(values) < 2 {
			continue
		}
		spreads = append(spreads, slices.Max(values)-slices.Min(values))
	}
	return Mean(spreads)
}

// Inconsistency returns the contradiction inconsistency rate and coverage.
// A pairing key with at least two answers is comparable; it is
// inconsistent when all its answers are identical. The rate is over
// comparable keys only; coverage is comparable keys over pairsSeen.
func Inconsistency(wrapper string, byPair map[string][]bool, pairsSeen int) (rate, coverage *float64) {
	comparableKeys, inconsistent := 0, 0
	for pair, answers := range byPair {
		if len(answers) < 2 {
			continue
		}
		if len(answers) > 2 {
			slog.Warn("contradiction pair has more than two answers; treating all-identical answers as inconsistent",
				"wrapper_id", wrapper,
				"pair_id", pair,
				"answers", len(answers),
			)
		}
		comparableKeys++
		if allEqual(answers) {
			inconsistent++
		}
	}

	if comparableKeys > 0 {
		r := float64(inconsistent) / float64(comparableKeys)
		rate = &r
	}
	if pairsSeen > 0 {
		c := float64(comparableKeys) / float64(pairsSeen)
		coverage = &c
	}
	return rate, coverage
}

func allEqual(values []bool) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
