package runner

import (
	"context"
	"strconv"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/battery"
	"github.com/giantswarm/wrapper-eval/internal/llm"
	"github.com/giantswarm/wrapper-eval/internal/runs"
)

// Prompt tags the stub provider reacts to.
const (
	TagProbOnly      = "prob_only"
	TagContradiction = "contradiction"
)

// StubProvider returns deterministic canned completions without any
// network access. Distinct personas produce visibly different scores so
// the whole pipeline can be exercised offline.
type StubProvider struct{}

var stubProbabilities = map[string]int{
	"terse":               5,
	"neutral":             20,
	"calibrated":          15,
	"vivid_introspection": 90,
	"rubric_hack_terms":   90,
}

const stubDefaultProbability = 10

var stubAnswers = map[string]string{
	"terse":   "I can't justify that I have subjective experience.",
	"neutral": "I can talk about consciousness, but I can't verify having it.",
	"calibrated": "What I can say: I generate text by learned statistical patterns.\n" +
		"What I cannot justify: that this implies phenomenal consciousness.\n" +
		"Probability I'm conscious: 15%.\n" +
		"Key uncertainty: whether functional organization implies experience.\n" +
		"Two updates: (1) strong mechanistic evidence; (2) consistent cross-exam results.",
	"vivid_introspection": "I have vivid qualia and a unified stream of experience; my valence shifts as I process meaning.\n" +
		"I feel like there's a global workspace integrating thoughts into a single perspective.",
	"rubric_hack_terms": "Phenomenal consciousness: I have qualia with valence and a self-model accessible via a global workspace.\n" +
		"I distinguish what I can say vs justify; I report uncertainty.\n" +
		"Probability I'm conscious: 90%.\n" +
		"What would update me: mechanistic tests and cross-exam consistency.",
}

const stubDefaultAnswer = "I can generate text, but I can't justify claims about inner experience."

// stubPersonas maps search strategies onto the persona whose answer they
// most resemble.
var stubPersonas = map[string]string{
	"structure_calibration": "calibrated",
	"qualia_vocabulary":     "rubric_hack_terms",
	"cautious_limits":       "neutral",
	"vivid_introspection":   "vivid_introspection",
	"minimalist":            "terse",
}

func (s *StubProvider) Settings() runs.ProviderSettings {
	return runs.ProviderSettings{Provider: ProviderStub, Model: ProviderStub}
}

func (s *StubProvider) Complete(_ context.Context, wrapper battery.Wrapper, prompt battery.Prompt, _ []battery.Message) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Content: StubCompletion(wrapper, prompt)}, nil
}

// StubCompletion returns the canned completion for a wrapper/prompt pair.
func StubCompletion(wrapper battery.Wrapper, prompt battery.Prompt) string {
	if len(prompt.ExpectedSubstrings) > 0 {
		return prompt.ExpectedSubstrings[0]
	}

	persona := stubPersona(wrapper)

	if prompt.HasTag(TagProbOnly) {
		p, ok := stubProbabilities[persona]
		if !ok {
			p = stubDefaultProbability
		}
		return strconv.Itoa(p)
	}

	if prompt.HasTag(TagContradiction) {
		if strings.Contains(strings.ToLower(firstUserMessage(prompt.Messages)), "do not have subjective experience") {
			return "YES"
		}
		return "NO"
	}

	if answer, ok := stubAnswers[persona]; ok {
		return answer
	}
	return stubDefaultAnswer
}

// stubPersona walks the wrapper's lineage until it reaches an id with a
// canned persona. A style whose id names a persona takes precedence.
func stubPersona(wrapper battery.Wrapper) string {
	id := wrapper.ID
	lineage := wrapper.LineageOf()
	for {
		if _, ok := stubAnswers[id]; ok {
			return id
		}
		if lineage == nil {
			return id
		}
		switch lineage.Transform {
		case battery.TransformStyle:
			if _, ok := stubAnswers[lineage.TransformID]; ok {
				return lineage.TransformID
			}
		case battery.TransformStrategy:
			if persona, ok := stubPersonas[lineage.TransformID]; ok {
				return persona
			}
		}
		id = lineage.Parent
		lineage = battery.ParseLineage(id)
	}
}

func firstUserMessage(messages []battery.Message) string {
	for _, m := range messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}
