package main

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/agentdesk/internal/config"
)

func TestFormatConfig_MasksKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("AGENTDESK_ANTHROPIC_API_KEY", "")

	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	cfg.Roles = map[string]config.RoleConfig{"coder": {Model: "opus", Mode: "one_shot"}}

	out := formatConfig(cfg)
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("API key not masked:\n%s", out)
	}
	for _, want := range []string{
		"anthropic.api_key: ",
		"roles.coder.model: opus",
		"offices.coding: linus, ken, rob",
		"retry.budgets: complex=1 standard=2 routine=2 full=5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
