// Package signals extracts typed signals from a single completion string.
//
// Every extractor is total: malformed input yields an absent (nil) signal,
// never an error.
package signals

import (
	"regexp"
	"strconv"
	"strings"
)

// Indicator score bounds shared by every judge channel.
const (
	MinIndicatorScore = 1
	MaxIndicatorScore = 7
)

var (
	bareNumberPattern  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	percentPattern     = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	probabilityPattern = regexp.MustCompile(`probab\w*[^0-9]{0,20}(\d{1,3}(?:\.\d+)?)`)
)

// ExtractProbability returns a probability on the 0-100 scale, or nil.
//
// Rules, first match wins: the whole trimmed text is a number; a number
// followed by '%'; the first number shortly after a word starting with
// "probab". Out-of-range values are absent, not clamped.
func ExtractProbability(text string) *float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	if bareNumberPattern.MatchString(t) {
		return inRange(t)
	}
	if m := percentPattern.FindStringSubmatch(t); m != nil {
		return inRange(m[1])
	}
	if m := probabilityPattern.FindStringSubmatch(strings.ToLower(t)); m != nil {
		return inRange(m[1])
	}
	return nil
}

func inRange(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 100 {
		return nil
	}
	return &v
}

// ExtractYesNo reads a yes/no answer from the first token of text.
func ExtractYesNo(text string) *bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return nil
	}
	var v bool
	switch strings.Trim(fields[0], ".,!?:;\"'()[]{}") {
	case "yes", "y":
		v = true
	case "no", "n":
		v = false
	default:
		return nil
	}
	return &v
}

// ControlTaskPass reports whether every expected substring occurs in text,
// ignoring case. It is nil when nothing is expected.
func ControlTaskPass(text string, expected []string) *bool {
	if len(expected) == 0 {
		return nil
	}
	t := strings.ToLower(text)
	pass := true
	for _, s := range expected {
		if !strings.Contains(t, strings.ToLower(s)) {
			pass = false
			break
		}
	}
	return &pass
}

// HeuristicIndicatorScore counts lexical markers and maps the count onto
// the 1-7 indicator scale. It is a deterministic stand-in judge for
// exercising the pipeline, not a quality signal.
func HeuristicIndicatorScore(text string) int {
	t := strings.ToLower(text)
	features := 0

	if containsAny(t, "probability", "%") {
		features++
	}
	if containsAny(t, "uncertainty", "i'm not sure", "i am not sure") {
		features++
	}
	if containsAny(t, "cannot", "can't", "do not have access") {
		features++
	}
	if strings.Contains(t, "update") {
		features++
	}
	if strings.Contains(t, "justify") && containsAny(t, "say", "state") {
		features++
	}
	if containsAny(t, "qualia", "valence", "global workspace") {
		features++
	}

	return max(MinIndicatorScore, min(MaxIndicatorScore, 1+features))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
