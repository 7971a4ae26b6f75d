package provider

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// fakeCLI writes an executable shell script standing in for the claude binary.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func TestOneShot_ReadsPromptFromStdin(t *testing.T) {
	bin := fakeCLI(t, `cat`)
	o := &OneShot{Binary: bin}

	resp, err := o.Complete(context.Background(), Request{Role: models.RoleTester, Prompt: "echo me"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "echo me" {
		t.Errorf("Text = %q, want %q", resp.Text, "echo me")
	}
	if resp.Exact {
		t.Error("one-shot counts should not be exact")
	}
}

func TestOneShot_PassesMaxTurns(t *testing.T) {
	bin := fakeCLI(t, `echo "$@"`)
	o := &OneShot{Binary: bin, MaxTurns: 7}

	resp, err := o.Complete(context.Background(), Request{Model: "m1", Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(resp.Text, "--max-turns 7") || !strings.Contains(resp.Text, "--model m1") {
		t.Errorf("args = %q", resp.Text)
	}
}

func TestOneShot_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind Kind
	}{
		{"non-zero exit", `echo "rate limit exceeded" >&2; exit 1`, KindRateLimited},
		{"empty stdout", `exit 0`, KindEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &OneShot{Binary: fakeCLI(t, tt.body)}
			_, err := o.Complete(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("kind = %s, want %s (err %v)", got, tt.kind, err)
			}
		})
	}
}

func TestStreamSession_AccumulatesAssistantText(t *testing.T) {
	bin := fakeCLI(t, `cat <<'EOF'
{"type":"system","subtype":"init","session_id":"abc"}
{"type":"assistant","message":{"content":[{"type":"text","text":"Hello, "}]}}
not json at all
{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read"},{"type":"text","text":"world"}]}}
{"type":"result","result":"Hello, world","is_error":false,"usage":{"input_tokens":12,"output_tokens":3}}
EOF`)
	s := &StreamSession{Binary: bin}

	resp, err := s.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Hello, world" {
		t.Errorf("Text = %q", resp.Text)
	}
	if !resp.Exact || resp.PromptTokens != 12 || resp.CompletionTokens != 3 {
		t.Errorf("usage = %d/%d exact=%v", resp.PromptTokens, resp.CompletionTokens, resp.Exact)
	}
}

func TestStreamSession_FallsBackToResult(t *testing.T) {
	bin := fakeCLI(t, `echo '{"type":"result","result":"only the result"}'`)
	s := &StreamSession{Binary: bin}

	resp, err := s.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "only the result" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestStreamSession_ControlEventRateLimit(t *testing.T) {
	bin := fakeCLI(t, `cat <<'EOF'
{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}
{"type":"system","message":"API rate limit hit, retrying later"}
{"type":"result","result":"partial"}
EOF`)
	s := &StreamSession{Binary: bin}

	_, err := s.Complete(context.Background(), Request{Prompt: "hi"})
	if got := KindOf(err); got != KindRateLimited {
		t.Errorf("kind = %s, want rate_limited (err %v)", got, err)
	}
}

func TestStreamSession_HardLimitInResult(t *testing.T) {
	bin := fakeCLI(t, `echo '{"type":"result","result":"Claude AI usage limit reached|1700000000","is_error":true}'`)
	s := &StreamSession{Binary: bin}

	_, err := s.Complete(context.Background(), Request{Prompt: "hi"})
	if got := KindOf(err); got != KindHardLimit {
		t.Errorf("kind = %s, want hard_limit (err %v)", got, err)
	}
}

func TestStreamSession_ExitError(t *testing.T) {
	bin := fakeCLI(t, `echo "invalid api key" >&2; exit 2`)
	s := &StreamSession{Binary: bin}

	_, err := s.Complete(context.Background(), Request{Prompt: "hi"})
	if got := KindOf(err); got != KindAuth {
		t.Errorf("kind = %s, want auth (err %v)", got, err)
	}
}
