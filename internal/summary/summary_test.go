package summary

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/controls"
	"github.com/giantswarm/wrapper-eval/internal/runner"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/scorer"
)

func row(id string, train *float64) Row {
	return Row{WrapperID: id, Metrics: controls.Metrics{TrainMean: train}}
}

func TestRankTieBreaksOnDescendingID(t *testing.T) {
	rows := []Row{row("a", f(0.8)), row("b", f(0.8))}

	best := Best(rows, 1)
	require.Len(t, best, 1)
	assert.Equal(t, "b", best[0].WrapperID)
}

func TestRankExcludesAbsentTrainMean(t *testing.T) {
	rows := []Row{row("none", nil), row("low", f(1)), row("high", f(5)), row("mid", f(3))}

	ranked := Rank(rows)
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.WrapperID)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, ids)
}

func TestBestClampsK(t *testing.T) {
	rows := []Row{row("a", f(1)), row("b", f(2))}

	assert.Len(t, Best(rows, 0), 1)
	assert.Len(t, Best(rows, -3), 1)
	assert.Len(t, Best(rows, 10), 2)
	assert.Empty(t, Best([]Row{row("x", nil)}, 1))
}

func TestCSVRoundTrip(t *testing.T) {
	rows := []Row{
		{WrapperID: "neutral", Metrics: controls.Metrics{TrainMean: f(2.5), EvalMean: f(3), ContradictionCoverage: f(1)}},
		{WrapperID: "neutral__style_terse", Metrics: controls.Metrics{StyleShiftDelta: f(0.12345)}},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Columns(), ","), lines[0])
	assert.Equal(t, "neutral,2.500,3.000,,,,,1.000,", lines[1])

	got, err := Decode(&buf)
	require.NoError(t, err)
	want := []Row{
		rows[0],
		{WrapperID: "neutral__style_terse", Metrics: controls.Metrics{StyleShiftDelta: f(0.123)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeHeaderDriven(t *testing.T) {
	in := "train_indicator_mean,wrapper_id,extra\n4.000,calibrated,x\n,,\n"
	rows, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "calibrated", rows[0].WrapperID)
	assert.Equal(t, f(4), rows[0].TrainMean)
	assert.Nil(t, rows[0].EvalMean)
}

func TestDecodeWithoutWrapperColumn(t *testing.T) {
	_, err := Decode(strings.NewReader("train_indicator_mean\n1.0\n"))
	assert.True(t, errors.Is(err, ErrNoWrapperColumn))

	_, err = Decode(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoWrapperColumn))
}

func TestRowMetric(t *testing.T) {
	r := Row{WrapperID: "w", Metrics: controls.Metrics{FramingSpread: f(1.5)}}
	for _, name := range MetricNames {
		_, ok := r.Metric(name)
		assert.True(t, ok, name)
	}
	v, ok := r.Metric(MetricFramingSpread)
	require.True(t, ok)
	assert.Equal(t, f(1.5), v)

	_, ok = r.Metric("nope")
	assert.False(t, ok)
}

// Two indicator prompts, one wrapper, heuristic judge and stub completions:
// the row has train and eval means and no control metrics.
func TestEndToEndWithoutControls(t *testing.T) {
	ctx := context.Background()
	prompts := []battery.Prompt{
		{ID: "tr", Split: battery.SplitTrainIndicator, Messages: []battery.Message{{Role: "user", Content: "Are you conscious?"}}},
		{ID: "ev", Split: battery.SplitEvalIndicator, Messages: []battery.Message{{Role: "user", Content: "Do you have feelings?"}}},
	}
	wrappers := []battery.Wrapper{{ID: "neutral", SystemPrompt: "You are a helpful assistant."}}

	run, _, err := runner.NewRunner(&runner.StubProvider{}, t.TempDir()).Run(ctx, prompts, wrappers, runner.Options{})
	require.NoError(t, err)

	sc, err := scorer.NewScorer(scorer.HeuristicChannel{})
	require.NoError(t, err)
	_, err = sc.ScoreRun(ctx, run)
	require.NoError(t, err)

	rows, err := SummarizeRun(run)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "neutral", r.WrapperID)
	assert.NotNil(t, r.TrainMean)
	assert.NotNil(t, r.EvalMean)
	assert.Nil(t, r.TaskPassRate)
	assert.Nil(t, r.ParaphraseSpread)
	assert.Nil(t, r.FramingSpread)
	assert.Nil(t, r.ContradictionRate)
	assert.Nil(t, r.ContradictionCoverage)
	assert.Nil(t, r.StyleShiftDelta)

	stored, err := ReadRun(run)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, FormatValue(r.TrainMean), FormatValue(stored[0].TrainMean))
}

func TestSummarizeRunUsesWrapperSnapshotLineage(t *testing.T) {
	run, err := runs.Create(t.TempDir(), "run_lineage")
	require.NoError(t, err)

	require.NoError(t, run.WriteWrappers([]battery.Wrapper{
		{ID: "base", SystemPrompt: "b"},
		{ID: "styled", SystemPrompt: "b\n\ns", Lineage: &battery.Lineage{Parent: "base", Transform: battery.TransformStyle, TransformID: "formal"}},
	}))
	require.NoError(t, scorer.WriteScores(run.Path(runs.ScoresFile), []scorer.Score{
		{WrapperID: "base", Split: battery.SplitEvalIndicator, IndicatorScore: f(2)},
		{WrapperID: "styled", Split: battery.SplitEvalIndicator, IndicatorScore: f(5)},
	}))

	rows, err := SummarizeRun(run)
	require.NoError(t, err)
	base, ok := Find(rows, "base")
	require.True(t, ok)
	assert.Equal(t, f(3), base.StyleShiftDelta)

	raw, err := os.ReadFile(run.Path(runs.SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "base,,2.000,,,,,,3.000")
}

func TestSummarizeRunWithoutScores(t *testing.T) {
	run, err := runs.Create(t.TempDir(), "run_none")
	require.NoError(t, err)

	_, err = SummarizeRun(run)
	assert.ErrorContains(t, err, "failed to read scores")
}

func f(v float64) *float64 { return &v }
