package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/persona"
)

type fakeChatModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func (f *fakeChatModel) lastCall() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

var testKey = conversation.Key{ContactID: "5511977776666", Channel: conversation.ChannelWhatsApp}

func newTestService(t *testing.T, chat, vision *fakeChatModel, profile persona.Persona) (*Service, *[]time.Duration) {
	t.Helper()
	var visionModel model.ChatModel
	if vision != nil {
		visionModel = vision
	}
	svc, err := NewServiceWithModels(context.Background(), chat, visionModel, persona.NewMemoryStore(profile), time.Second, nil)
	require.NoError(t, err)

	var slept []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return svc, &slept
}

func turns(n int) []conversation.Turn {
	out := make([]conversation.Turn, 0, n)
	for i := 0; i < n; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		out = append(out, conversation.Turn{Role: role, Text: fmt.Sprintf("turn-%d", i)})
	}
	return out
}

func TestBuildSystemPromptSections(t *testing.T) {
	prompt := BuildSystemPrompt(persona.Persona{
		Goals:         "Vender traduções",
		Restrictions:  "Não inventar preços",
		KnowledgeBase: []persona.KnowledgeItem{{Title: "Prazos", Content: "3 dias úteis"}},
		FAQs:          []persona.FAQ{{Question: "Aceitam PDF?", Answer: "Sim"}},
	})

	assert.Contains(t, prompt, "**OBJETIVOS:**\nVender traduções")
	assert.NotContains(t, prompt, "**TOM:**")
	assert.Contains(t, prompt, "**RESTRIÇÕES:**\nNão inventar preços")
	assert.Contains(t, prompt, "**CONHECIMENTO:**\n**Prazos:**\n3 dias úteis")
	assert.Contains(t, prompt, "**FAQs:**\nP: Aceitam PDF?\nR: Sim")
	assert.Less(t, strings.Index(prompt, "OBJETIVOS"), strings.Index(prompt, "FAQs"))
}

func TestBuildSystemPromptFallback(t *testing.T) {
	assert.Equal(t, FallbackPrompt, BuildSystemPrompt(persona.Persona{Name: "Mia"}))
}

func TestBuildHistoryKeepsLastTen(t *testing.T) {
	history := BuildHistory(turns(15))
	require.Len(t, history, HistoryLimit)
	assert.Equal(t, "turn-5", history[0].Content)
	assert.Equal(t, schema.Assistant, history[0].Role)
	assert.Equal(t, "turn-14", history[9].Content)
}

func TestGenerateAssemblesBoundedContext(t *testing.T) {
	chat := &fakeChatModel{reply: "Olá! Como posso ajudar?"}
	svc, slept := newTestService(t, chat, nil, persona.Seed())

	reply := svc.Generate(context.Background(), testKey, "Hello", turns(25))
	assert.Equal(t, "Olá! Como posso ajudar?", reply)

	input := chat.lastCall()
	require.Len(t, input, 1+HistoryLimit+1)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, "turn-15", input[1].Content)
	assert.Equal(t, schema.User, input[len(input)-1].Role)
	assert.Equal(t, "Hello", input[len(input)-1].Content)

	assert.Equal(t, []time.Duration{persona.DefaultResponseDelay}, *slept)
}

func TestGenerateFailureReturnsApology(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("rate limited")}
	svc, _ := newTestService(t, chat, nil, persona.Seed())

	assert.Equal(t, GenerationApology, svc.Generate(context.Background(), testKey, "Hello", nil))
}

func TestGenerateEmptyCompletionReturnsApology(t *testing.T) {
	chat := &fakeChatModel{reply: "   "}
	svc, _ := newTestService(t, chat, nil, persona.Seed())

	assert.Equal(t, GenerationApology, svc.Generate(context.Background(), testKey, "Hello", nil))
}

func TestGenerateSkipsDelayWhenDisabled(t *testing.T) {
	zero := 0
	profile := persona.Seed()
	profile.ResponseDelaySeconds = &zero

	chat := &fakeChatModel{reply: "ok"}
	svc, slept := newTestService(t, chat, nil, profile)

	svc.Generate(context.Background(), testKey, "oi", nil)
	assert.Empty(t, *slept)
}

func TestGenerateDelayInterruptedByContext(t *testing.T) {
	chat := &fakeChatModel{reply: "ok"}
	svc, _ := newTestService(t, chat, nil, persona.Seed())
	svc.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, GenerationApology, svc.Generate(ctx, testKey, "oi", nil))
	assert.Nil(t, chat.lastCall())
}

func TestDescribeImageSendsMultiContent(t *testing.T) {
	vision := &fakeChatModel{reply: "Certidão de nascimento em inglês."}
	svc, _ := newTestService(t, &fakeChatModel{}, vision, persona.Seed())

	text, err := svc.DescribeImage(context.Background(), "https://cdn.example/doc.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "Certidão de nascimento em inglês.", text)

	input := vision.lastCall()
	require.Len(t, input, 2)
	parts := input[1].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, defaultImagePrompt, parts[0].Text)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "https://cdn.example/doc.jpg", parts[1].ImageURL.URL)
}

func TestDescribeImageError(t *testing.T) {
	vision := &fakeChatModel{err: errors.New("unsupported image")}
	svc, _ := newTestService(t, &fakeChatModel{}, vision, persona.Seed())

	_, err := svc.DescribeImage(context.Background(), "data:image/png;base64,AAAA", "Extraia o texto deste documento PDF")
	assert.Error(t, err)
}
