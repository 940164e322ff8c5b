package query

import (
	"context"
	"errors"
	"testing"

	"gongtu-rag-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []llm.Message
}

func (f *fakeLLM) Complete(ctx context.Context, model string, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.prompts = messages
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestExpand(t *testing.T) {
	t.Run("original question always comes first", func(t *testing.T) {
		client := &fakeLLM{response: `["where is the roof drain detail", "locate drainage detail on roof plan", "roof drainage section location"]`}
		e := NewExpander(client, "test-model")

		queries := e.Expand(context.Background(), "Where is the roof drain detail?")
		require.Len(t, queries, 4)
		assert.Equal(t, "Where is the roof drain detail?", queries[0])
		assert.Equal(t, "where is the roof drain detail", queries[1])
	})

	t.Run("markdown fenced response is unwrapped", func(t *testing.T) {
		client := &fakeLLM{response: "```json\n[\"a\", \"b\", \"c\"]\n```"}
		e := NewExpander(client, "test-model")

		queries := e.Expand(context.Background(), "q")
		assert.Equal(t, []string{"q", "a", "b", "c"}, queries)
	})

	t.Run("llm failure falls back to original only", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("upstream timeout")}
		e := NewExpander(client, "test-model")

		queries := e.Expand(context.Background(), "q")
		assert.Equal(t, []string{"q"}, queries)
	})

	t.Run("unparseable response falls back to original only", func(t *testing.T) {
		client := &fakeLLM{response: "Sure! Here are three rewrites: ..."}
		e := NewExpander(client, "test-model")

		queries := e.Expand(context.Background(), "q")
		assert.Equal(t, []string{"q"}, queries)
	})

	t.Run("duplicates of the original are dropped", func(t *testing.T) {
		client := &fakeLLM{response: `["Q", "other phrasing", ""]`}
		e := NewExpander(client, "test-model")

		queries := e.Expand(context.Background(), "Q")
		assert.Equal(t, []string{"Q", "other phrasing"}, queries)
	})
}

func TestIsComplex(t *testing.T) {
	e := NewExpander(&fakeLLM{}, "test-model")

	tests := []struct {
		name           string
		question       string
		retrievedCount int
		want           bool
	}{
		{
			name:     "short lookup question is simple",
			question: "What is the ceiling height on A-101?",
			want:     false,
		},
		{
			name:     "long question is complex",
			question: "Can you tell me what the required fire rating is for the corridor walls shown on the second floor plan near the stair core?",
			want:     true,
		},
		{
			name:     "comparison keyword is complex",
			question: "Compare the door schedules on A-601 and A-602",
			want:     true,
		},
		{
			name:     "two questions marks is complex",
			question: "What size is the beam? And what is its material?",
			want:     true,
		},
		{
			name:     "two and-joined clauses is complex",
			question: "List the footing sizes and rebar and concrete strength",
			want:     true,
		},
		{
			name:     "single and stays simple",
			question: "Show plumbing and riser diagram",
			want:     false,
		},
		{
			name:           "large retrieval set is complex",
			question:       "Show waterproofing details",
			retrievedCount: 11,
			want:           true,
		},
		{
			name:           "retrieval at threshold stays simple",
			question:       "Show waterproofing details",
			retrievedCount: 10,
			want:           false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsComplex(tt.question, tt.retrievedCount))
		})
	}
}

func TestDecompose(t *testing.T) {
	t.Run("returns subquestions for a complex question", func(t *testing.T) {
		client := &fakeLLM{response: `{"simple": false, "subquestions": ["What is on A-601?", "What is on A-602?"]}`}
		e := NewExpander(client, "test-model")

		subs := e.Decompose(context.Background(), "Compare A-601 and A-602")
		assert.Equal(t, []string{"What is on A-601?", "What is on A-602?"}, subs)
	})

	t.Run("model says simple returns nil", func(t *testing.T) {
		client := &fakeLLM{response: `{"simple": true}`}
		e := NewExpander(client, "test-model")

		assert.Nil(t, e.Decompose(context.Background(), "What is the ceiling height?"))
	})

	t.Run("llm error returns nil", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("rate limited")}
		e := NewExpander(client, "test-model")

		assert.Nil(t, e.Decompose(context.Background(), "q"))
	})

	t.Run("caps subquestions at four", func(t *testing.T) {
		client := &fakeLLM{response: `{"simple": false, "subquestions": ["a","b","c","d","e","f"]}`}
		e := NewExpander(client, "test-model")

		subs := e.Decompose(context.Background(), "q")
		assert.Len(t, subs, 4)
	})

	t.Run("empty subquestion list returns nil", func(t *testing.T) {
		client := &fakeLLM{response: `{"simple": false, "subquestions": []}`}
		e := NewExpander(client, "test-model")

		assert.Nil(t, e.Decompose(context.Background(), "q"))
	})
}
