package prompt

import (
	"strings"
	"testing"

	"github.com/quiet-coder-io/domainos/internal/store"
)

func TestBuildSystemPromptOrdersSharedProtocolsByPriority(t *testing.T) {
	in := SystemPromptInput{
		Domain: store.Domain{Name: "Acme"},
		SharedProtocols: []store.SharedProtocol{
			{Name: "Low", Content: "low content", Priority: 1, IsEnabled: true},
			{Name: "High", Content: "high content", Priority: 10, IsEnabled: true},
		},
	}
	out := BuildSystemPrompt(in)
	if strings.Index(out, "## High") > strings.Index(out, "## Low") {
		t.Fatal("expected higher-priority shared protocol to appear first")
	}
}

func TestBuildSystemPromptSkipsDisabledSharedProtocols(t *testing.T) {
	in := SystemPromptInput{
		Domain: store.Domain{Name: "Acme"},
		SharedProtocols: []store.SharedProtocol{
			{Name: "Disabled", Content: "x", IsEnabled: false},
		},
	}
	out := BuildSystemPrompt(in)
	if strings.Contains(out, "## Disabled") {
		t.Fatal("expected disabled shared protocol to be omitted")
	}
}

func TestBuildSystemPromptIncludesEscalationTriggers(t *testing.T) {
	in := SystemPromptInput{
		Domain: store.Domain{Name: "Acme", EscalationTriggers: []string{"legal risk", "budget overrun"}},
	}
	out := BuildSystemPrompt(in)
	if !strings.Contains(out, "legal risk") || !strings.Contains(out, "budget overrun") {
		t.Fatalf("expected escalation triggers in prompt, got: %s", out)
	}
}
