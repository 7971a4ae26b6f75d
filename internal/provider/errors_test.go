package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"Claude AI usage limit reached|1735689600", KindHardLimit},
		{"429 Too Many Requests", KindRateLimited},
		{"rate_limit_error: slow down", KindRateLimited},
		{"upstream returned status 429", KindRateLimited},
		{"HTTP 429: retry later", KindRateLimited},
		{"prompt used 42987 tokens", KindOther},
		{"request id 1429 failed", KindOther},
		{"Your credit balance is too low", KindBilling},
		{"monthly quota exceeded", KindBilling},
		{"Invalid API key provided", KindAuth},
		{"authentication_error", KindAuth},
		{"Overloaded", KindUnavailable},
		{"model not found: claude-9", KindUnavailable},
		{"empty response from model", KindEmpty},
		{"connection reset by peer", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyMessage(tt.msg); got != tt.want {
				t.Errorf("ClassifyMessage(%q) = %s, want %s", tt.msg, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	pe := &Error{Kind: KindBilling, Backend: "api", Err: errors.New("nope")}
	wrapped := fmt.Errorf("dispatch: %w", pe)

	if got := KindOf(wrapped); got != KindBilling {
		t.Errorf("KindOf(wrapped) = %s, want billing", got)
	}
	if got := KindOf(ErrEmptyResponse); got != KindEmpty {
		t.Errorf("KindOf(ErrEmptyResponse) = %s, want empty", got)
	}
	if got := KindOf(errors.New("rate limit exceeded")); got != KindRateLimited {
		t.Errorf("KindOf(plain) = %s, want rate_limited", got)
	}
	if got := KindOf(nil); got != KindOther {
		t.Errorf("KindOf(nil) = %s, want other", got)
	}
}

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{KindOther, KindRateLimited, KindUnavailable, KindEmpty}
	fatal := []Kind{KindBilling, KindAuth, KindHardLimit}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range fatal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestClassify_KeepsExistingError(t *testing.T) {
	orig := &Error{Kind: KindRateLimited, Err: errors.New("control event")}
	got := classify("stream", "m", orig)
	if got != orig {
		t.Fatal("classify should return the existing *Error")
	}
	if got.Backend != "stream" || got.Model != "m" {
		t.Errorf("backend/model not filled: %+v", got)
	}
}

func TestContainsHardLimit(t *testing.T) {
	if !ContainsHardLimit("Sorry, USAGE LIMIT REACHED for today") {
		t.Error("expected hard limit match")
	}
	if ContainsHardLimit("all good") {
		t.Error("unexpected hard limit match")
	}
}
