package answer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gongtu-rag-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	model    string
	messages []llm.Message
	gen      *llm.GenerationParams
}

type fakeLLM struct {
	responses []string
	err       error
	calls     []recordedCall
}

func (f *fakeLLM) Complete(ctx context.Context, model string, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.calls = append(f.calls, recordedCall{model: model, messages: messages, gen: gen})
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "ok", nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func newGeneratorWith(client *fakeLLM) Generator {
	return NewGenerator(map[string]llm.Client{
		ProviderOpenAI:    client,
		ProviderAnthropic: client,
	}, "gpt-4o")
}

func TestRegistry(t *testing.T) {
	t.Run("lookup known model", func(t *testing.T) {
		spec, ok := Lookup("gpt-4o")
		require.True(t, ok)
		assert.Equal(t, ProviderOpenAI, spec.Provider)
		assert.Greater(t, spec.MaxTokens, 0)
	})

	t.Run("lookup unknown model", func(t *testing.T) {
		_, ok := Lookup("nonexistent")
		assert.False(t, ok)
	})

	t.Run("models returns a copy", func(t *testing.T) {
		models := Models()
		require.NotEmpty(t, models)
		models[0].ID = "mutated"
		fresh := Models()
		assert.NotEqual(t, "mutated", fresh[0].ID)
	})

	t.Run("at least one advanced model per provider shape", func(t *testing.T) {
		providers := map[string]bool{}
		for _, spec := range Models() {
			providers[spec.Provider] = true
		}
		assert.True(t, providers[ProviderOpenAI])
		assert.True(t, providers[ProviderAnthropic])
	})
}

func TestDirect(t *testing.T) {
	t.Run("message order is system, history, user", func(t *testing.T) {
		client := &fakeLLM{responses: []string{"the beam is W12x26 [S.pdf, Sheet S-201]"}}
		g := newGeneratorWith(client)

		history := []llm.Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		}
		answerText, err := g.Direct(context.Background(), "gpt-4o", history, "What size is the beam?", "CONTEXT", false)

		require.NoError(t, err)
		assert.Equal(t, "the beam is W12x26 [S.pdf, Sheet S-201]", answerText)
		require.Len(t, client.calls, 1)
		messages := client.calls[0].messages
		require.Len(t, messages, 4)
		assert.Equal(t, "system", messages[0].Role)
		assert.Contains(t, messages[0].Content, "Context:\nCONTEXT")
		assert.Contains(t, messages[0].Content, "Citation protocol")
		assert.Equal(t, "earlier question", messages[1].Content)
		assert.Equal(t, "What size is the beam?", messages[3].Content)
	})

	t.Run("scaffold replaces the user turn", func(t *testing.T) {
		client := &fakeLLM{}
		g := newGeneratorWith(client)

		_, err := g.Direct(context.Background(), "claude-sonnet-4-5", nil, "Compare A-601 and A-602", "CONTEXT", true)
		require.NoError(t, err)
		userTurn := client.calls[0].messages[len(client.calls[0].messages)-1]
		assert.Contains(t, userTurn.Content, "step by step")
		assert.Contains(t, userTurn.Content, "Compare A-601 and A-602")
	})

	t.Run("registry drives model and generation params", func(t *testing.T) {
		client := &fakeLLM{}
		g := newGeneratorWith(client)

		_, err := g.Direct(context.Background(), "claude-sonnet-4-5", nil, "q", "ctx", false)
		require.NoError(t, err)
		call := client.calls[0]
		assert.Equal(t, "claude-sonnet-4-5", call.model)
		require.NotNil(t, call.gen.MaxTokens)
		assert.Equal(t, 8192, *call.gen.MaxTokens)
		require.NotNil(t, call.gen.Temperature)
		assert.InDelta(t, 0.1, *call.gen.Temperature, 1e-9)
	})

	t.Run("unknown model is fatal", func(t *testing.T) {
		g := newGeneratorWith(&fakeLLM{})
		_, err := g.Direct(context.Background(), "nope", nil, "q", "ctx", false)
		assert.Error(t, err)
	})

	t.Run("model failure propagates", func(t *testing.T) {
		g := newGeneratorWith(&fakeLLM{err: errors.New("upstream 500")})
		_, err := g.Direct(context.Background(), "gpt-4o", nil, "q", "ctx", false)
		assert.Error(t, err)
	})
}

func TestDecomposed(t *testing.T) {
	t.Run("answers subquestions sequentially then synthesizes", func(t *testing.T) {
		client := &fakeLLM{responses: []string{
			"sub answer 1 [a.pdf, Sheet A-101]",
			"sub answer 2 [a.pdf, Sheet A-102]",
			"final [a.pdf, Sheet A-101] [a.pdf, Sheet A-102]",
		}}
		g := newGeneratorWith(client)

		var retrieved []string
		retrieve := func(ctx context.Context, question string) (string, error) {
			retrieved = append(retrieved, question)
			return "ctx for " + question, nil
		}

		answerText, err := g.Decomposed(context.Background(), "gpt-4o", nil,
			"Compare A-101 and A-102", []string{"What is on A-101?", "What is on A-102?"}, retrieve)

		require.NoError(t, err)
		assert.Equal(t, "final [a.pdf, Sheet A-101] [a.pdf, Sheet A-102]", answerText)
		// 每个子问题独立检索
		assert.Equal(t, []string{"What is on A-101?", "What is on A-102?"}, retrieved)
		// 两次子问题调用加一次合成调用
		require.Len(t, client.calls, 3)

		// 第二个子问题带入了第一个子问题的问答
		second := client.calls[1].messages
		assert.Contains(t, messageContents(second), "What is on A-101?")
		assert.Contains(t, messageContents(second), "sub answer 1 [a.pdf, Sheet A-101]")

		// 合成回合包含原问题与全部子答案
		synthesis := client.calls[2].messages
		joined := messageContents(synthesis)
		assert.Contains(t, joined, "Compare A-101 and A-102")
		assert.Contains(t, joined, "sub answer 1 [a.pdf, Sheet A-101]")
		assert.Contains(t, joined, "sub answer 2 [a.pdf, Sheet A-102]")
		assert.Contains(t, joined, "verbatim")
	})

	t.Run("retrieval failure is fatal", func(t *testing.T) {
		g := newGeneratorWith(&fakeLLM{})
		retrieve := func(ctx context.Context, question string) (string, error) {
			return "", errors.New("store unavailable")
		}
		_, err := g.Decomposed(context.Background(), "gpt-4o", nil, "q", []string{"s1"}, retrieve)
		assert.Error(t, err)
	})
}

func TestDeriveTitle(t *testing.T) {
	t.Run("strips surrounding quotes", func(t *testing.T) {
		client := &fakeLLM{responses: []string{`"Roof Drain Locations"`}}
		g := newGeneratorWith(client)

		title, err := g.DeriveTitle(context.Background(), "Where are the roof drains?")
		require.NoError(t, err)
		assert.Equal(t, "Roof Drain Locations", title)
	})

	t.Run("propagates failure for caller to log", func(t *testing.T) {
		g := newGeneratorWith(&fakeLLM{err: errors.New("timeout")})
		_, err := g.DeriveTitle(context.Background(), "q")
		assert.Error(t, err)
	})
}

func messageContents(messages []llm.Message) string {
	out := ""
	for _, m := range messages {
		out += fmt.Sprintf("%s: %s\n", m.Role, m.Content)
	}
	return out
}
