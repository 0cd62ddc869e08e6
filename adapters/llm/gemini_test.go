package llm

import (
	"testing"

	"google.golang.org/genai"

	"github.com/lifelongcx/voiceagent/domain/entities"
)

func TestValidateGeminiConfig(t *testing.T) {
	if err := ValidateGeminiConfig(GeminiConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", Temperature: 1.5}); err == nil {
		t.Error("expected error for out-of-range temperature")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", TopP: -0.5}); err == nil {
		t.Error("expected error for out-of-range topP")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k", MaxOutputTokens: -1}); err == nil {
		t.Error("expected error for negative token cap")
	}
	if err := ValidateGeminiConfig(GeminiConfig{APIKey: "k"}); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestBuildContentsRoleMapping(t *testing.T) {
	history := []entities.Turn{
		{Speaker: entities.SpeakerAgent, Text: "greeting"},
		{Speaker: entities.SpeakerCaller, Text: "it broke"},
		{Speaker: entities.SpeakerAgent, Text: "sorry to hear"},
	}

	contents := buildContents(history, "can I get a refund")

	if len(contents) != 4 {
		t.Fatalf("expected 4 contents, got %d", len(contents))
	}

	wantRoles := []genai.Role{genai.RoleModel, genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, content := range contents {
		if genai.Role(content.Role) != wantRoles[i] {
			t.Errorf("content %d role = %s, want %s", i, content.Role, wantRoles[i])
		}
	}

	last := contents[len(contents)-1]
	if len(last.Parts) == 0 || last.Parts[0].Text != "can I get a refund" {
		t.Error("latest caller input must be the final content")
	}
}

func TestNewGeminiConfigFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "12")

	config := NewGeminiConfigFromEnv()
	if config.APIKey != "env-key" {
		t.Errorf("unexpected API key: %q", config.APIKey)
	}
	if config.Model != "gemini-test" {
		t.Errorf("unexpected model: %q", config.Model)
	}
	if config.TimeoutSeconds != 12 {
		t.Errorf("unexpected timeout: %d", config.TimeoutSeconds)
	}
}
