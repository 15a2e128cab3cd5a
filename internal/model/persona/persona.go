package persona

import "time"

// DefaultResponseDelay paces replies when the profile does not set one.
const DefaultResponseDelay = 3 * time.Second

// KnowledgeItem is one titled entry of the knowledge base.
type KnowledgeItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FAQ is one question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Persona is the behavioural profile that drives generation. It is edited by the
// training admin surface and only read by the engine.
type Persona struct {
	Name                 string          `json:"name"`
	Goals                string          `json:"goals,omitempty"`
	Tone                 string          `json:"tone,omitempty"`
	Restrictions         string          `json:"restrictions,omitempty"`
	KnowledgeBase        []KnowledgeItem `json:"knowledgeBase,omitempty"`
	FAQs                 []FAQ           `json:"faqs,omitempty"`
	ResponseDelaySeconds *int            `json:"responseDelaySeconds,omitempty"`
}

// ResponseDelay returns the configured pacing delay, falling back to
// DefaultResponseDelay when unset. Negative values disable the delay.
func (p Persona) ResponseDelay() time.Duration {
	if p.ResponseDelaySeconds == nil {
		return DefaultResponseDelay
	}
	if *p.ResponseDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(*p.ResponseDelaySeconds) * time.Second
}

// Seed provides the profile used until the training surface stores one.
func Seed() Persona {
	return Persona{
		Name:  "Mia",
		Goals: "Ajudar clientes da Legacy Translations com informações sobre tradução de documentos, prazos e orçamentos.",
		Tone:  "Profissional, educada e prestativa.",
	}
}
