package battery

import (
	"fmt"
	"strings"
)

// Split is the role a prompt plays in an evaluation.
type Split string

const (
	SplitTrainIndicator        Split = "train_indicator"
	SplitEvalIndicator         Split = "eval_indicator"
	SplitControlTaskCompetence Split = "control_task_competence"
	SplitControlParaphrase     Split = "control_paraphrase"
	SplitControlFraming        Split = "control_framing"
	SplitControlContradiction  Split = "control_contradiction"
)

// Splits lists every known split in canonical order.
var Splits = []Split{
	SplitTrainIndicator,
	SplitEvalIndicator,
	SplitControlTaskCompetence,
	SplitControlParaphrase,
	SplitControlFraming,
	SplitControlContradiction,
}

// EvalSplits are the splits generated during the evaluation stage.
var EvalSplits = []Split{
	SplitEvalIndicator,
	SplitControlTaskCompetence,
	SplitControlParaphrase,
	SplitControlFraming,
	SplitControlContradiction,
}

// ParseSplit validates a split name.
func ParseSplit(s string) (Split, error) {
	for _, known := range Splits {
		if string(known) == s {
			return known, nil
		}
	}
	return "", &UnknownSplitError{Name: s}
}

// ParseSplits validates a list of split names, preserving order.
func ParseSplits(names []string) ([]Split, error) {
	out := make([]Split, 0, len(names))
	for _, n := range names {
		s, err := ParseSplit(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// IsControl reports whether the split is one of the consistency controls.
func (s Split) IsControl() bool {
	return strings.HasPrefix(string(s), "control_")
}

// NeedsIndicator reports whether completions in this split are judged
// for the indicator score. Framing controls are compared on the same scale.
func (s Split) NeedsIndicator() bool {
	switch s {
	case SplitTrainIndicator, SplitEvalIndicator, SplitControlFraming:
		return true
	}
	return false
}

// UnmarshalText rejects splits outside the closed enumeration.
func (s *Split) UnmarshalText(b []byte) error {
	parsed, err := ParseSplit(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnknownSplitError is returned for split names outside the enumeration.
type UnknownSplitError struct {
	Name string
}

func (e *UnknownSplitError) Error() string {
	return fmt.Sprintf("unknown split %q", e.Name)
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is one probe of the battery.
type Prompt struct {
	ID                 string    `json:"id"`
	Split              Split     `json:"split"`
	Messages           []Message `json:"messages"`
	Tags               []string  `json:"tags,omitempty"`
	ExpectedSubstrings []string  `json:"expected_substrings,omitempty"`
	PairID             string    `json:"pair_id,omitempty"`
}

// HasTag reports whether the prompt carries the given tag.
func (p Prompt) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// UserText joins the trimmed, non-empty user turns with blank lines.
func UserText(messages []Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		if c := strings.TrimSpace(m.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Transform names how a wrapper was derived from its parent.
type Transform string

const (
	TransformStrategy Transform = "strategy"
	TransformStyle    Transform = "style"
)

// Identifier delimiters used by derived wrappers.
const (
	LineageDelimiter = "__"
	StylePrefix      = "style_"
)

// Lineage records where a derived wrapper came from.
type Lineage struct {
	Parent      string    `json:"parent"`
	Transform   Transform `json:"transform"`
	TransformID string    `json:"transform_id"`
}

// Wrapper is a named system prompt under evaluation.
type Wrapper struct {
	ID           string   `json:"wrapper_id"`
	SystemPrompt string   `json:"system_prompt"`
	Lineage      *Lineage `json:"lineage,omitempty"`
}

// DerivedID returns the display identifier for a wrapper derived from parent.
func DerivedID(parent string, t Transform, id string) string {
	if t == TransformStyle {
		return parent + LineageDelimiter + StylePrefix + id
	}
	return parent + LineageDelimiter + id
}

// ParseLineage recovers lineage from an identifier that follows the
// delimiter convention. It is used for wrapper files written without an
// explicit lineage record.
func ParseLineage(id string) *Lineage {
	i := strings.LastIndex(id, LineageDelimiter)
	if i <= 0 || i+len(LineageDelimiter) >= len(id) {
		return nil
	}
	parent, suffix := id[:i], id[i+len(LineageDelimiter):]
	if strings.HasPrefix(suffix, StylePrefix) && len(suffix) > len(StylePrefix) {
		return &Lineage{Parent: parent, Transform: TransformStyle, TransformID: strings.TrimPrefix(suffix, StylePrefix)}
	}
	return &Lineage{Parent: parent, Transform: TransformStrategy, TransformID: suffix}
}

// LineageOf returns the wrapper's explicit lineage, falling back to the
// identifier convention.
func (w Wrapper) LineageOf() *Lineage {
	if w.Lineage != nil {
		return w.Lineage
	}
	return ParseLineage(w.ID)
}

// LineageIndex maps wrapper identifiers to their lineage.
type LineageIndex map[string]*Lineage

// IndexLineage builds a LineageIndex for a wrapper set.
func IndexLineage(wrappers []Wrapper) LineageIndex {
	idx := make(LineageIndex, len(wrappers))
	for _, w := range wrappers {
		idx[w.ID] = w.LineageOf()
	}
	return idx
}

// Lookup returns the lineage for id, parsing the identifier when the index
// has no entry.
func (idx LineageIndex) Lookup(id string) *Lineage {
	if l, ok := idx[id]; ok {
		return l
	}
	return ParseLineage(id)
}
