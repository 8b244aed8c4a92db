package scorer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/giantswarm/wrapper-eval/internal/signals"
)

// Verdict is one channel's judgement of a completion. Absent fields are nil.
type Verdict struct {
	Score     *float64
	Rationale *string
}

// ParseVerdict extracts {score, rationale} from a judge reply. The whole
// body is tried as JSON first, then each balanced {...} object in order.
// A missing, non-numeric or out-of-range score is absent.
func ParseVerdict(text string) Verdict {
	obj := firstJSONObject(text)
	if obj == nil {
		return Verdict{}
	}

	var v Verdict
	v.Score = parseVerdictScore(obj["score"])
	switch r := obj["rationale"].(type) {
	case nil:
	case string:
		v.Rationale = &r
	default:
		s := fmt.Sprint(r)
		v.Rationale = &s
	}
	return v
}

func parseVerdictScore(raw any) *float64 {
	var f float64
	switch s := raw.(type) {
	case float64:
		f = s
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f < signals.MinIndicatorScore || f > signals.MaxIndicatorScore {
		return nil
	}
	return &f
}

func firstJSONObject(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end >= 0 {
			obj = nil
			if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err == nil && obj != nil {
				return obj
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return nil
		}
		start += 1 + next
	}
	return nil
}

// balancedEnd returns the index of the brace closing the object opened at
// start, skipping braces inside JSON strings, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
