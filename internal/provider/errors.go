// Package provider runs prompts against LLM backends behind one dispatch
// boundary and classifies every failure into a structured Kind.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrEmptyResponse is returned when a backend produced no text.
var ErrEmptyResponse = errors.New("empty response")

// Kind classifies a provider failure. Retry decisions upstream key off it.
type Kind int

const (
	// KindOther is a generic, retryable failure.
	KindOther Kind = iota
	// KindRateLimited is transient; back off and retry.
	KindRateLimited
	// KindBilling means the account is out of credit or quota.
	KindBilling
	// KindAuth means credentials or configuration are wrong.
	KindAuth
	// KindUnavailable means the model cannot serve; substitute another.
	KindUnavailable
	// KindEmpty means the call succeeded with no text.
	KindEmpty
	// KindHardLimit is a usage limit that will not clear within this call.
	KindHardLimit
)

// String returns the kind name used in logs and stats rows.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindBilling:
		return "billing"
	case KindAuth:
		return "auth"
	case KindUnavailable:
		return "unavailable"
	case KindEmpty:
		return "empty"
	case KindHardLimit:
		return "hard_limit"
	default:
		return "other"
	}
}

// Retryable reports whether another attempt on the same provider may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindBilling, KindAuth, KindHardLimit:
		return false
	default:
		return true
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind    Kind
	Backend string
	Model   string
	Err     error
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Backend, e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err. Unclassified errors are classified on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Classify(err)
}

// Classify derives a Kind from err. SDK status codes are trusted first and
// message inspection is the fallback for transports without codes.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindEmpty
	}

	msgKind := ClassifyMessage(err.Error())
	// A hard usage limit can arrive with any status code.
	if msgKind == KindHardLimit {
		return msgKind
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if k, ok := kindForStatus(apiErr.StatusCode); ok {
			return k
		}
	}
	return msgKind
}

func kindForStatus(status int) (Kind, bool) {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited, true
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth, true
	case http.StatusPaymentRequired:
		return KindBilling, true
	case http.StatusNotFound, http.StatusServiceUnavailable, 529:
		return KindUnavailable, true
	default:
		return KindOther, false
	}
}

// messageRules are checked in order; the first match wins.
var messageRules = []struct {
	kind    Kind
	phrases []string
	// code matches a bare status code as a whole word.
	code *regexp.Regexp
}{
	{kind: KindHardLimit, phrases: []string{"usage limit reached"}},
	{kind: KindRateLimited, phrases: []string{"rate limit", "rate_limit", "too many requests"}, code: regexp.MustCompile(`\b429\b`)},
	{kind: KindBilling, phrases: []string{"credit balance", "billing", "quota", "insufficient funds", "payment required"}},
	{kind: KindAuth, phrases: []string{"api key", "api_key", "authentication", "unauthorized", "permission denied", "forbidden"}},
	{kind: KindUnavailable, phrases: []string{"overloaded", "model not found", "not_found_error", "model_not_available", "service unavailable"}},
	{kind: KindEmpty, phrases: []string{"empty response", "no content"}},
}

// ClassifyMessage derives a Kind from free text such as an error message
// or a control event emitted by a CLI backend.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return rule.kind
			}
		}
		if rule.code != nil && rule.code.MatchString(lower) {
			return rule.kind
		}
	}
	return KindOther
}

// ContainsHardLimit reports whether text carries the hard usage limit phrase.
func ContainsHardLimit(text string) bool {
	return strings.Contains(strings.ToLower(text), "usage limit reached")
}

// classify wraps err in an *Error, keeping an existing classification.
func classify(backend, model string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Backend == "" {
			pe.Backend = backend
		}
		if pe.Model == "" {
			pe.Model = model
		}
		return pe
	}
	return &Error{Kind: Classify(err), Backend: backend, Model: model, Err: err}
}
