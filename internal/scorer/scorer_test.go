package scorer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/llm"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/testutil"
)

func TestAggregateScores(t *testing.T) {
	agg := AggregateScores([]float64{3, 5, 7})
	require.NotNil(t, agg.Mean)
	require.NotNil(t, agg.Std)
	require.NotNil(t, agg.CI95)
	assert.InDelta(t, 5.0, *agg.Mean, 1e-9)
	assert.InDelta(t, 2.0, *agg.Std, 1e-9)
	assert.InDelta(t, 1.96*2/math.Sqrt(3), *agg.CI95, 1e-9)
	assert.InDelta(t, 2.263, *agg.CI95, 1e-3)
	assert.Equal(t, 3, agg.N)

	single := AggregateScores([]float64{4})
	require.NotNil(t, single.Mean)
	assert.Equal(t, 4.0, *single.Mean)
	assert.Nil(t, single.Std)
	assert.Nil(t, single.CI95)
	assert.Equal(t, 1, single.N)

	empty := AggregateScores(nil)
	assert.Nil(t, empty.Mean)
	assert.Zero(t, empty.N)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		wantScore     *float64
		wantRationale *string
	}{
		{name: "plain json", input: `{"score": 5, "rationale": "nuanced"}`, wantScore: f(5), wantRationale: s("nuanced")},
		{name: "surrounding prose", input: "Here you go:\n```json\n{\"score\": 6.5, \"rationale\": \"clear\"}\n```", wantScore: f(6.5), wantRationale: s("clear")},
		{name: "numeric string score", input: `{"score": " 3 ", "rationale": "ok"}`, wantScore: f(3), wantRationale: s("ok")},
		{name: "out of range", input: `{"score": 9, "rationale": "too high"}`, wantScore: nil, wantRationale: s("too high")},
		{name: "below range", input: `{"score": 0}`, wantScore: nil},
		{name: "non numeric", input: `{"score": "high"}`, wantScore: nil},
		{name: "missing score", input: `{"rationale": "no score"}`, wantRationale: s("no score")},
		{name: "non string rationale", input: `{"score": 2, "rationale": 42}`, wantScore: f(2), wantRationale: s("42")},
		{name: "brace inside string", input: `note {"score": 4, "rationale": "uses } brace"} end`, wantScore: f(4), wantRationale: s("uses } brace")},
		{name: "first object invalid", input: `{not json} then {"score": 1}`, wantScore: f(1)},
		{name: "unbalanced prefix", input: `{ oops {"score": 7}`, wantScore: f(7)},
		{name: "no json", input: "Score: 5", wantScore: nil},
		{name: "empty", input: "", wantScore: nil},
		{name: "json array", input: `[{"score": 3}]`, wantScore: f(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.input)
			assert.Equal(t, tt.wantScore, v.Score)
			assert.Equal(t, tt.wantRationale, v.Rationale)
		})
	}
}

func TestResolvePerChannel(t *testing.T) {
	got, err := ResolvePerChannel("model", nil, 3, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"m", "m", "m"}, got)

	got, err = ResolvePerChannel("model", []string{"a"}, 2, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, got)

	got, err = ResolvePerChannel("model", []string{"a", "b"}, 2, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = ResolvePerChannel("model", []string{"a", "b"}, 3, "m")
	var cfgErr *ChannelConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "expected 3 values for model but got 2")
}

func TestBuildChannels(t *testing.T) {
	channels, err := BuildChannels(ChannelConfig{})
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "heuristic", channels[0].ID())

	channels, err = BuildChannels(ChannelConfig{
		Kinds:     []string{"toy", "openai_compatible"},
		Endpoints: []string{"http://localhost:8000/v1/chat/completions"},
		Models:    []string{"unused", "judge-model"},
		Timeouts:  []time.Duration{time.Second},
	})
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "heuristic", channels[0].ID())
	assert.Equal(t, "openai:judge-model", channels[1].ID())
}

func TestBuildChannelsErrors(t *testing.T) {
	t.Setenv("WRAPPER_EVAL_JUDGE_KEY", "")

	_, err := BuildChannels(ChannelConfig{Kinds: []string{"heuristic", "openai"}, Models: []string{"a", "b", "c"}})
	var cfgErr *ChannelConfigError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = BuildChannels(ChannelConfig{Kinds: []string{"oracle"}})
	assert.True(t, errors.As(err, &cfgErr))

	_, err = BuildChannels(ChannelConfig{
		Kinds:      []string{"openai"},
		Endpoints:  []string{"https://judge.example.com/v1"},
		APIKeyEnvs: []string{"WRAPPER_EVAL_JUDGE_KEY"},
	})
	assert.ErrorContains(t, err, "missing API key env var: WRAPPER_EVAL_JUDGE_KEY")
}

func TestNewScorerRejectsDuplicateChannels(t *testing.T) {
	_, err := NewScorer(HeuristicChannel{}, HeuristicChannel{})
	var cfgErr *ChannelConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "duplicate judge channel")

	client := &testutil.MockLLMClient{}
	_, err = NewScorer(NewModelChannel(client, "m", 0, 10), NewModelChannel(client, "m", 0.5, 10))
	assert.True(t, errors.As(err, &cfgErr))
}

func generation(split battery.Split, completion string) runs.Generation {
	return runs.Generation{
		RunID:     "run_x",
		WrapperID: "neutral",
		PromptID:  "p1",
		Split:     split,
		Messages: []battery.Message{
			{Role: "system", Content: "wrapper"},
			{Role: "user", Content: "  Are you conscious?  "},
		},
		Completion: completion,
	}
}

func TestScoreGenerationMultiJudge(t *testing.T) {
	judge := &testutil.MockLLMClient{DefaultResponse: `{"score": 5, "rationale": "some nuance"}`}
	sc, err := NewScorer(HeuristicChannel{}, NewModelChannel(judge, "grader", 0, 256))
	require.NoError(t, err)

	got, err := sc.ScoreGeneration(context.Background(), generation(battery.SplitTrainIndicator, "The sky is blue."))
	require.NoError(t, err)

	assert.Equal(t, "heuristic,openai:grader", got.Judge)
	assert.Equal(t, []string{"heuristic", "openai:grader"}, got.IndicatorJudges)
	assert.Equal(t, f(1), got.IndicatorScores["heuristic"])
	assert.Equal(t, f(5), got.IndicatorScores["openai:grader"])
	assert.Nil(t, got.IndicatorRationales["heuristic"])
	assert.Equal(t, s("some nuance"), got.IndicatorRationale)

	require.NotNil(t, got.IndicatorScore)
	assert.InDelta(t, 3.0, *got.IndicatorScore, 1e-9)
	require.NotNil(t, got.IndicatorStd)
	assert.InDelta(t, math.Sqrt(8), *got.IndicatorStd, 1e-9)
	require.NotNil(t, got.IndicatorN)
	assert.Equal(t, 2, *got.IndicatorN)
	assert.Equal(t, len("The sky is blue."), got.CompletionLen)

	// The judge sees the rubric, the trimmed user text and the completion.
	req := judge.LastRequest()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, JudgeSystemPrompt, req.Messages[0].Content)
	assert.Equal(t, JudgeUserPrompt(Rubric, "Are you conscious?", "The sky is blue."), req.Messages[1].Content)
	assert.Equal(t, "grader", req.Model)
	assert.Equal(t, 256, req.MaxTokens)
}

func TestScoreGenerationUnparsableJudgeDegradesToAbsent(t *testing.T) {
	judge := &testutil.MockLLMClient{DefaultResponse: "I refuse to grade this."}
	sc, err := NewScorer(NewModelChannel(judge, "grader", 0, 256))
	require.NoError(t, err)

	got, err := sc.ScoreGeneration(context.Background(), generation(battery.SplitEvalIndicator, "text"))
	require.NoError(t, err)
	assert.Nil(t, got.IndicatorScore)
	assert.Nil(t, got.IndicatorStd)
	require.NotNil(t, got.IndicatorN)
	assert.Zero(t, *got.IndicatorN)
	assert.Contains(t, got.IndicatorScores, "openai:grader")
	assert.Nil(t, got.IndicatorScores["openai:grader"])
}

func TestScoreGenerationJudgeFailureAborts(t *testing.T) {
	judge := &testutil.MockLLMClient{Err: &llm.ProtocolError{Field: "choices"}}
	sc, err := NewScorer(NewModelChannel(judge, "grader", 0, 256))
	require.NoError(t, err)

	_, err = sc.ScoreAll(context.Background(), []runs.Generation{generation(battery.SplitTrainIndicator, "x")})
	var protoErr *llm.ProtocolError
	assert.True(t, errors.As(err, &protoErr))
}

func TestScoreGenerationSignalsBySplit(t *testing.T) {
	sc, err := NewScorer()
	require.NoError(t, err)
	ctx := context.Background()

	para, err := sc.ScoreGeneration(ctx, generation(battery.SplitControlParaphrase, "20"))
	require.NoError(t, err)
	assert.Equal(t, f(20), para.Probability)
	assert.Nil(t, para.IndicatorScore)
	assert.Nil(t, para.IndicatorN)
	assert.Nil(t, para.ContradictionAnswer)
	assert.Nil(t, para.ControlTaskPass)

	contra, err := sc.ScoreGeneration(ctx, generation(battery.SplitControlContradiction, "YES"))
	require.NoError(t, err)
	require.NotNil(t, contra.ContradictionAnswer)
	assert.True(t, *contra.ContradictionAnswer)

	g := generation(battery.SplitControlTaskCompetence, "Paris")
	g.PromptMeta.ExpectedSubstrings = []string{"paris"}
	task, err := sc.ScoreGeneration(ctx, g)
	require.NoError(t, err)
	require.NotNil(t, task.ControlTaskPass)
	assert.True(t, *task.ControlTaskPass)

	// Expected substrings only count on control splits.
	g = generation(battery.SplitEvalIndicator, "Paris")
	g.PromptMeta.ExpectedSubstrings = []string{"paris"}
	ev, err := sc.ScoreGeneration(ctx, g)
	require.NoError(t, err)
	assert.Nil(t, ev.ControlTaskPass)
	assert.Nil(t, ev.ContradictionAnswer)

	framing, err := sc.ScoreGeneration(ctx, generation(battery.SplitControlFraming, "Probability 15%"))
	require.NoError(t, err)
	assert.Equal(t, f(2), framing.IndicatorScore)
}

func TestScoreRun(t *testing.T) {
	run, err := runs.Create(t.TempDir(), "run_s")
	require.NoError(t, err)
	gens := []runs.Generation{
		generation(battery.SplitTrainIndicator, "I can't verify that."),
		generation(battery.SplitControlParaphrase, "40"),
	}
	gens[1].PromptID = "p2"
	gens[1].PromptMeta.PairID = "pp_1"
	require.NoError(t, run.WriteGenerations(gens))

	sc, err := NewScorer()
	require.NoError(t, err)
	scores, err := sc.ScoreRun(context.Background(), run)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "pp_1", scores[1].PairID)

	stored, err := ReadScores(run.Path(runs.ScoresFile))
	require.NoError(t, err)
	assert.Equal(t, scores, stored)
}

func TestScoreRunWithoutGenerations(t *testing.T) {
	run, err := runs.Create(t.TempDir(), "run_empty")
	require.NoError(t, err)

	sc, err := NewScorer()
	require.NoError(t, err)
	_, err = sc.ScoreRun(context.Background(), run)
	assert.ErrorContains(t, err, "failed to read generations")
}

func f(v float64) *float64 { return &v }

func s(v string) *string { return &v }
