package retry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

var (
	reasoningBlock    = regexp.MustCompile(`(?is)<(?:thinking|think|reasoning)>.*?</(?:thinking|think|reasoning)>`)
	reasoningUnclosed = regexp.MustCompile(`(?is)<(?:thinking|think|reasoning)>.*$`)
	fixMarker         = regexp.MustCompile(`(?m)^\s*FILE:\s*\S+`)
	codeFence         = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")
)

// StripReasoning removes internal reasoning blocks from model output. An
// unclosed block swallows the rest of the text.
func StripReasoning(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	text = reasoningUnclosed.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// HasFixMarker reports whether text names at least one file to correct.
func HasFixMarker(text string) bool {
	return fixMarker.MatchString(text)
}

// IsSentinel reports whether text is the literal sentinel, ignoring case
// and trailing punctuation.
func IsSentinel(text, sentinel string) bool {
	if sentinel == "" {
		return false
	}
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".!")
	return strings.EqualFold(trimmed, sentinel)
}

// ValidTaskList reports whether text is a non-empty JSON array of objects
// that each carry a non-empty title. A surrounding code fence is tolerated.
func ValidTaskList(text string) bool {
	text = strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if !gjson.Valid(text) {
		return false
	}
	list := gjson.Parse(text)
	if !list.IsArray() {
		return false
	}
	items := list.Array()
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsObject() {
			return false
		}
		if strings.TrimSpace(item.Get("title").String()) == "" {
			return false
		}
	}
	return true
}

// Plausible applies the role's gate to already-cleaned text. reason is set
// when the output is rejected.
func Plausible(spec models.RoleSpec, text string, minChars int) (ok bool, reason string) {
	switch spec.Gate {
	case models.GateFixMarker:
		if HasFixMarker(text) {
			return true, ""
		}
		return false, "missing FILE: marker"
	case models.GateTaskList:
		if ValidTaskList(text) {
			return true, ""
		}
		return false, "not a task list"
	case models.GateSentinel:
		if IsSentinel(text, spec.Sentinel) {
			return true, ""
		}
	}
	if n := len(text); n < minChars {
		return false, fmt.Sprintf("too short (%d < %d chars)", n, minChars)
	}
	return true, ""
}
