// Package scorer turns generations into per-judge scores and extracted
// signals, aggregating every judge channel into one indicator score.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/jsonl"
	"github.com/giantswarm/wrapper-eval/internal/runs"
	"github.com/giantswarm/wrapper-eval/internal/signals"
)

// Score is the derived record for one generation.
type Score struct {
	RunID     string        `json:"run_id"`
	WrapperID string        `json:"wrapper_id"`
	PromptID  string        `json:"prompt_id"`
	Split     battery.Split `json:"split"`
	PairID    string        `json:"pair_id,omitempty"`

	Probability *float64 `json:"probability_0_100"`

	Judge               string              `json:"judge"`
	IndicatorScore      *float64            `json:"indicator_score"`
	IndicatorRationale  *string             `json:"indicator_rationale"`
	IndicatorScores     map[string]*float64 `json:"indicator_scores,omitempty"`
	IndicatorRationales map[string]*string  `json:"indicator_rationales,omitempty"`
	IndicatorJudges     []string            `json:"indicator_judges"`
	IndicatorStd        *float64            `json:"indicator_score_std"`
	IndicatorCI95       *float64            `json:"indicator_score_ci95"`
	IndicatorN          *int                `json:"indicator_score_n"`

	ContradictionAnswer *bool `json:"contradiction_answer"`
	ControlTaskPass     *bool `json:"control_task_pass"`
	CompletionLen       int   `json:"completion_len"`
}

// Key returns the (wrapper, prompt) key of the scored generation.
func (s Score) Key() runs.Key {
	return runs.Key{Wrapper: s.WrapperID, Prompt: s.PromptID}
}

// Scorer applies the configured judge channels to generations.
type Scorer struct {
	channels []Channel
	ids      []string
}

// NewScorer creates a Scorer. With no channels the heuristic channel is
// used. Duplicate channel ids are a configuration error.
func NewScorer(channels ...Channel) (*Scorer, error) {
	if len(channels) == 0 {
		channels = []Channel{HeuristicChannel{}}
	}
	ids := make([]string, 0, len(channels))
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		id := c.ID()
		if seen[id] {
			return nil, &ChannelConfigError{Reason: fmt.Sprintf("duplicate judge channel %q", id)}
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return &Scorer{channels: channels, ids: ids}, nil
}

// FromConfig builds the judge channels described by cfg and a Scorer over
// them.
func FromConfig(cfg ChannelConfig) (*Scorer, error) {
	channels, err := BuildChannels(cfg)
	if err != nil {
		return nil, err
	}
	return NewScorer(channels...)
}

// ChannelIDs returns the channel ids in configured order.
func (s *Scorer) ChannelIDs() []string {
	return append([]string(nil), s.ids...)
}

// ScoreGeneration derives the Score of a single generation. Only judge
// transport failures are returned as errors.
func (s *Scorer) ScoreGeneration(ctx context.Context, g runs.Generation) (Score, error) {
	out := Score{
		RunID:           g.RunID,
		WrapperID:       g.WrapperID,
		PromptID:        g.PromptID,
		Split:           g.Split,
		PairID:          g.PromptMeta.PairID,
		Probability:     signals.ExtractProbability(g.Completion),
		Judge:           strings.Join(s.ids, ","),
		IndicatorJudges: s.ChannelIDs(),
		CompletionLen:   utf8.RuneCountInString(g.Completion),
	}

	if g.Split.NeedsIndicator() {
		in := Input{Prompt: battery.UserText(g.Messages), Completion: g.Completion}
		out.IndicatorScores = make(map[string]*float64, len(s.channels))
		out.IndicatorRationales = make(map[string]*string, len(s.channels))

		var present []float64
		for i, c := range s.channels {
			v, err := c.Judge(ctx, in)
			if err != nil {
				return Score{}, err
			}
			id := s.ids[i]
			out.IndicatorScores[id] = v.Score
			out.IndicatorRationales[id] = v.Rationale
			if v.Score != nil {
				present = append(present, *v.Score)
			}
			if out.IndicatorRationale == nil && v.Rationale != nil && *v.Rationale != "" {
				out.IndicatorRationale = v.Rationale
			}
		}

		agg := AggregateScores(present)
		out.IndicatorScore = agg.Mean
		out.IndicatorStd = agg.Std
		out.IndicatorCI95 = agg.CI95
		out.IndicatorN = &agg.N
	}

	if g.Split == battery.SplitControlContradiction {
		out.ContradictionAnswer = signals.ExtractYesNo(g.Completion)
	}
	if g.Split.IsControl() {
		out.ControlTaskPass = signals.ControlTaskPass(g.Completion, g.PromptMeta.ExpectedSubstrings)
	}
	return out, nil
}

// ScoreAll scores generations sequentially, in order.
func (s *Scorer) ScoreAll(ctx context.Context, gens []runs.Generation) ([]Score, error) {
	scores := make([]Score, 0, len(gens))
	for i, g := range gens {
		if err := ctx.Err(); err != nil {
			slog.Warn("scoring cancelled", "completed", i, "total", len(gens))
			return nil, err
		}
		sc, err := s.ScoreGeneration(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s/%s: %w", g.WrapperID, g.PromptID, err)
		}
		scores = append(scores, sc)
	}
	return scores, nil
}

// ScoreRun scores the run's generations and writes scores.jsonl.
func (s *Scorer) ScoreRun(ctx context.Context, run *runs.Run) ([]Score, error) {
	gens, err := run.ReadGenerations()
	if err != nil {
		return nil, fmt.Errorf("failed to read generations: %w", err)
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("run %s has no generations", run.ID)
	}

	slog.Info("scoring run",
		"run_id", run.ID,
		"generations", len(gens),
		"judges", strings.Join(s.ids, ","),
	)

	scores, err := s.ScoreAll(ctx, gens)
	if err != nil {
		return nil, err
	}
	if err := WriteScores(run.Path(runs.ScoresFile), scores); err != nil {
		return nil, fmt.Errorf("failed to write scores: %w", err)
	}
	return scores, nil
}

// ReadScores reads a scores.jsonl file.
func ReadScores(path string) ([]Score, error) {
	return jsonl.ReadFile[Score](path)
}

// WriteScores writes a scores.jsonl file.
func WriteScores(path string, scores []Score) error {
	return jsonl.WriteFile(path, scores)
}
