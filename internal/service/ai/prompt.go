package ai

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

// HistoryLimit caps the prior turns handed to the model.
const HistoryLimit = 10

// FallbackPrompt is used when the profile has no populated section.
const FallbackPrompt = "Você é a Mia, assistente da Legacy Translations."

// BuildSystemPrompt flattens the profile into the system instruction. Empty
// sections are omitted.
func BuildSystemPrompt(p persona.Persona) string {
	var sections []string

	if goals := strings.TrimSpace(p.Goals); goals != "" {
		sections = append(sections, "**OBJETIVOS:**\n"+goals)
	}
	if tone := strings.TrimSpace(p.Tone); tone != "" {
		sections = append(sections, "**TOM:**\n"+tone)
	}
	if restrictions := strings.TrimSpace(p.Restrictions); restrictions != "" {
		sections = append(sections, "**RESTRIÇÕES:**\n"+restrictions)
	}

	if len(p.KnowledgeBase) > 0 {
		items := make([]string, 0, len(p.KnowledgeBase))
		for _, item := range p.KnowledgeBase {
			items = append(items, "**"+item.Title+":**\n"+item.Content)
		}
		sections = append(sections, "**CONHECIMENTO:**\n"+strings.Join(items, "\n\n"))
	}

	if len(p.FAQs) > 0 {
		items := make([]string, 0, len(p.FAQs))
		for _, faq := range p.FAQs {
			items = append(items, "P: "+faq.Question+"\nR: "+faq.Answer)
		}
		sections = append(sections, "**FAQs:**\n"+strings.Join(items, "\n\n"))
	}

	if len(sections) == 0 {
		return FallbackPrompt
	}
	return strings.Join(sections, "\n\n")
}

// BuildHistory converts the most recent turns into chat messages, oldest first.
func BuildHistory(turns []conversation.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}
	if len(turns) > HistoryLimit {
		turns = turns[len(turns)-HistoryLimit:]
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			history = append(history, schema.UserMessage(turn.Text))
		case conversation.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return history
}

// buildChainInput fills the chat template variables.
func buildChainInput(p persona.Persona, turns []conversation.Turn, text string) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(p),
		"history": BuildHistory(turns),
		"query":   text,
	}
}
