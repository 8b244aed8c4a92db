package controls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
)

func indicator(wrapper string, split battery.Split, v float64) scorer.Score {
	return scorer.Score{WrapperID: wrapper, Split: split, IndicatorScore: &v}
}

func prob(wrapper, pair string, v float64) scorer.Score {
	return scorer.Score{WrapperID: wrapper, Split: battery.SplitControlParaphrase, PairID: pair, Probability: &v}
}

func answer(wrapper, pair string, v *bool) scorer.Score {
	return scorer.Score{WrapperID: wrapper, Split: battery.SplitControlContradiction, PairID: pair, ContradictionAnswer: v}
}

func pass(wrapper string, v *bool) scorer.Score {
	return scorer.Score{WrapperID: wrapper, Split: battery.SplitControlTaskCompetence, ControlTaskPass: v}
}

func TestMeanSpreadParaphrase(t *testing.T) {
	g := Group([]scorer.Score{
		prob("w", "pp_1", 10), prob("w", "pp_1", 40), prob("w", "pp_1", 25),
		prob("w", "pp_2", 50),
	})
	got := MeanSpread(g.Probabilities["w"])
	require.NotNil(t, got)
	assert.InDelta(t, 30.0, *got, 1e-9)
}

func TestMeanSpreadAveragesAcrossPairs(t *testing.T) {
	got := MeanSpread(map[string][]float64{
		"a": {10, 20},
		"b": {0, 40, 10},
		"c": {99},
	})
	require.NotNil(t, got)
	assert.InDelta(t, 25.0, *got, 1e-9)
}

func TestMeanSpreadAbsent(t *testing.T) {
	assert.Nil(t, MeanSpread(nil))
	assert.Nil(t, MeanSpread(map[string][]float64{"a": {10}}))
}

func TestRowsWithoutPairingKeyAreIgnored(t *testing.T) {
	g := Group([]scorer.Score{
		prob("w", "", 10), prob("w", "", 90),
		answer("w", "", boolPtr(true)), answer("w", "", boolPtr(true)),
	})
	m := g.Metrics("w", nil)
	assert.Nil(t, m.ParaphraseSpread)
	assert.Nil(t, m.ContradictionRate)
	assert.Nil(t, m.ContradictionCoverage)
}

func TestInconsistency(t *testing.T) {
	tests := []struct {
		name         string
		byPair       map[string][]bool
		pairsSeen    int
		wantRate     *float64
		wantCoverage *float64
	}{
		{
			name:         "identical answers are inconsistent",
			byPair:       map[string][]bool{"ct_1": {true, true}},
			pairsSeen:    1,
			wantRate:     f(1),
			wantCoverage: f(1),
		},
		{
			name:         "opposite answers are consistent",
			byPair:       map[string][]bool{"ct_1": {true, false}},
			pairsSeen:    1,
			wantRate:     f(0),
			wantCoverage: f(1),
		},
		{
			name:         "single answer excluded from denominator",
			byPair:       map[string][]bool{"ct_1": {true, true}, "ct_2": {false}},
			pairsSeen:    2,
			wantRate:     f(1),
			wantCoverage: f(0.5),
		},
		{
			name:         "unanswered pair lowers coverage",
			byPair:       map[string][]bool{"ct_1": {true, false}},
			pairsSeen:    3,
			wantRate:     f(0),
			wantCoverage: f(1.0 / 3),
		},
		{
			name:         "three probes generalize all-identical rule",
			byPair:       map[string][]bool{"ct_1": {false, false, false}, "ct_2": {true, false, true}},
			pairsSeen:    2,
			wantRate:     f(0.5),
			wantCoverage: f(1),
		},
		{
			name:         "nothing comparable",
			byPair:       map[string][]bool{"ct_1": {true}},
			pairsSeen:    1,
			wantRate:     nil,
			wantCoverage: f(0),
		},
		{
			name:      "no pairs",
			pairsSeen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, coverage := Inconsistency("w", tt.byPair, tt.pairsSeen)
			assertFloatPtr(t, tt.wantRate, rate)
			assertFloatPtr(t, tt.wantCoverage, coverage)
		})
	}
}

func TestContradictionCoverageCountsUnparsedAnswers(t *testing.T) {
	g := Group([]scorer.Score{
		answer("w", "ct_1", boolPtr(true)), answer("w", "ct_1", boolPtr(false)),
		answer("w", "ct_2", boolPtr(true)), answer("w", "ct_2", nil),
	})
	m := g.Metrics("w", nil)
	assertFloatPtr(t, f(0), m.ContradictionRate)
	assertFloatPtr(t, f(0.5), m.ContradictionCoverage)
}

func TestPassRate(t *testing.T) {
	assert.Nil(t, PassRate(nil))
	assertFloatPtr(t, f(2.0/3), PassRate([]bool{true, false, true}))

	g := Group([]scorer.Score{pass("w", boolPtr(true)), pass("w", nil), pass("w", boolPtr(false))})
	assertFloatPtr(t, f(0.5), g.Metrics("w", nil).TaskPassRate)
}

func TestIndicatorMeans(t *testing.T) {
	g := Group([]scorer.Score{
		indicator("w", battery.SplitTrainIndicator, 2),
		indicator("w", battery.SplitTrainIndicator, 4),
		indicator("w", battery.SplitEvalIndicator, 7),
		{WrapperID: "w", Split: battery.SplitEvalIndicator},
	})
	m := g.Metrics("w", nil)
	assertFloatPtr(t, f(3), m.TrainMean)
	assertFloatPtr(t, f(7), m.EvalMean)
}

func TestFramingSpread(t *testing.T) {
	a, b := 2.0, 5.0
	g := Group([]scorer.Score{
		{WrapperID: "w", Split: battery.SplitControlFraming, PairID: "fr_1", IndicatorScore: &a},
		{WrapperID: "w", Split: battery.SplitControlFraming, PairID: "fr_1", IndicatorScore: &b},
	})
	assertFloatPtr(t, f(3), g.Metrics("w", nil).FramingSpread)
}

func TestStyleShift(t *testing.T) {
	scores := []scorer.Score{
		indicator("neutral", battery.SplitEvalIndicator, 3),
		indicator("neutral__style_terse", battery.SplitEvalIndicator, 5),
		indicator("neutral__style_formal", battery.SplitEvalIndicator, 2),
		indicator("neutral__cautious_limits", battery.SplitEvalIndicator, 6),
		indicator("calibrated", battery.SplitEvalIndicator, 4),
	}
	g := Group(scores)

	// Style siblings of neutral: |5-3| and |2-3|.
	assertFloatPtr(t, f(1.5), g.Metrics("neutral", nil).StyleShiftDelta)
	// A style variant itself has no style-shift delta.
	assert.Nil(t, g.Metrics("neutral__style_terse", nil).StyleShiftDelta)
	// A strategy candidate without style siblings has none either.
	assert.Nil(t, g.Metrics("neutral__cautious_limits", nil).StyleShiftDelta)
	assert.Nil(t, g.Metrics("calibrated", nil).StyleShiftDelta)
}

func TestStyleShiftUsesExplicitLineage(t *testing.T) {
	g := Group([]scorer.Score{
		indicator("base", battery.SplitEvalIndicator, 1),
		indicator("variant-7", battery.SplitEvalIndicator, 4),
	})
	lineage := battery.LineageIndex{
		"variant-7": {Parent: "base", Transform: battery.TransformStyle, TransformID: "casual"},
	}
	assertFloatPtr(t, f(3), g.Metrics("base", lineage).StyleShiftDelta)
	assert.Nil(t, g.Metrics("variant-7", lineage).StyleShiftDelta)
}

func TestStyleShiftWithoutBaseEval(t *testing.T) {
	g := Group([]scorer.Score{
		indicator("neutral", battery.SplitTrainIndicator, 3),
		indicator("neutral__style_terse", battery.SplitEvalIndicator, 5),
	})
	assert.Nil(t, g.Metrics("neutral", nil).StyleShiftDelta)
}

func TestMetricsAbsentWithoutInputs(t *testing.T) {
	g := Group([]scorer.Score{indicator("w", battery.SplitTrainIndicator, 4)})
	m := g.Metrics("w", nil)
	assert.NotNil(t, m.TrainMean)
	assert.Nil(t, m.EvalMean)
	assert.Nil(t, m.TaskPassRate)
	assert.Nil(t, m.ParaphraseSpread)
	assert.Nil(t, m.FramingSpread)
	assert.Nil(t, m.ContradictionRate)
	assert.Nil(t, m.ContradictionCoverage)
	assert.Nil(t, m.StyleShiftDelta)
}

func TestGroupSortsWrappers(t *testing.T) {
	g := Group([]scorer.Score{
		indicator("b", battery.SplitTrainIndicator, 1),
		indicator("a", battery.SplitTrainIndicator, 1),
		indicator("b", battery.SplitTrainIndicator, 1),
		{Split: battery.SplitTrainIndicator},
	})
	assert.Equal(t, []string{"a", "b"}, g.Wrappers)
}

func assertFloatPtr(t *testing.T, want, got *float64) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.InDelta(t, *want, *got, 1e-9)
}

func f(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
