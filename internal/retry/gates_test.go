package retry

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no markers", "plain answer", "plain answer"},
		{"thinking block", "<thinking>hmm\nlet me see</thinking>\nanswer", "answer"},
		{"think block", "<think>x</think>answer", "answer"},
		{"reasoning block", "before <reasoning>why</reasoning> after", "before  after"},
		{"multiple blocks", "<think>a</think>one<thinking>b</thinking>two", "onetwo"},
		{"case insensitive", "<THINKING>a</THINKING>ok", "ok"},
		{"unclosed", "answer<thinking>never closed", "answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripReasoning(tt.in); got != tt.want {
				t.Errorf("StripReasoning(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHasFixMarker(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"FILE: main.go", true},
		{"Some preamble\nFILE: internal/x.go\n```go\n```", true},
		{"  FILE:   a.txt", true},
		{"FILE:", false},
		{"the file: main.go", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HasFixMarker(tt.text); got != tt.want {
			t.Errorf("HasFixMarker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestValidTaskList(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"array of titled objects", `[{"title":"a"},{"title":"b","deps":[]}]`, true},
		{"fenced", "```json\n[{\"title\":\"a\"}]\n```", true},
		{"bare fence", "```\n[{\"title\":\"a\"}]\n```", true},
		{"empty array", `[]`, false},
		{"object not array", `{"title":"a"}`, false},
		{"missing title", `[{"name":"a"}]`, false},
		{"blank title", `[{"title":"  "}]`, false},
		{"non-object element", `[{"title":"a"}, 3]`, false},
		{"prose", "first do a then b", false},
		{"truncated", `[{"title":"a"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTaskList(tt.text); got != tt.want {
				t.Errorf("ValidTaskList(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPlausible(t *testing.T) {
	long := strings.Repeat("a", 200)
	tests := []struct {
		name string
		role models.Role
		text string
		want bool
	}{
		{"long enough", models.RoleTester, long, true},
		{"one short", models.RoleTester, long[:199], false},
		{"sentinel", models.RoleReviewer, "APPROVED", true},
		{"sentinel lower with period", models.RoleReviewer, "approved.", true},
		{"sentinel in sentence is short", models.RoleReviewer, "not APPROVED yet", false},
		{"reviewer long", models.RoleReviewer, long, true},
		{"fix marker short", models.RoleFixer, "FILE: a.go", true},
		{"fix without marker long", models.RoleFixer, long, false},
		{"planner list", models.RolePlanner, `[{"title":"x"}]`, true},
		{"planner prose long", models.RolePlanner, long, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Plausible(tt.role.MustSpec(), tt.text, 200)
			if got != tt.want {
				t.Errorf("Plausible = %v (%s), want %v", got, reason, tt.want)
			}
			if !got && reason == "" {
				t.Error("rejection without reason")
			}
		})
	}
}

func TestBreaker(t *testing.T) {
	b := NewBreaker(2)
	if b.RecordShort(models.RoleCoder) {
		t.Error("tripped at tally 0")
	}
	if b.RecordShort(models.RoleTester) {
		t.Error("tripped at tally 1")
	}
	if !b.RecordShort(models.RoleCoder) {
		t.Error("should trip once tally reached threshold")
	}
	global, coder := b.Counts(models.RoleCoder)
	if global != 3 || coder != 2 {
		t.Errorf("counts = %d/%d, want 3/2", global, coder)
	}

	b.RecordSuccess()
	if global, tester := b.Counts(models.RoleTester); global != 0 || tester != 0 {
		t.Errorf("after success = %d/%d", global, tester)
	}

	disabled := NewBreaker(0)
	for i := 0; i < 10; i++ {
		if disabled.RecordShort(models.RoleCoder) {
			t.Fatal("disabled breaker tripped")
		}
	}
}
