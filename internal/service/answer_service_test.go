package service

import (
	"context"
	"testing"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Answer:  config.LLMGenerationConfig{Temperature: 0.2, MaxTokens: 800},
		Summary: config.LLMGenerationConfig{Temperature: 0.3, MaxTokens: 500},
	}
}

func TestBuildContextBlock(t *testing.T) {
	chunks := []model.RetrievedChunk{
		{DocumentID: 1, ChunkIndex: 0, Text: "Total due: $500", Distance: 0.25},
		{DocumentID: 1, ChunkIndex: 2, Text: "Due March 1", Distance: 0.4},
	}
	want := "[Source 1, Page 1, Relevance 0.75]\nTotal due: $500\n" +
		"\n---\n" +
		"[Source 2, Page 3, Relevance 0.60]\nDue March 1\n"
	assert.Equal(t, want, BuildContextBlock(chunks))
	assert.Equal(t, "", BuildContextBlock(nil))
}

func TestBuildGroupedContext(t *testing.T) {
	chunks := []model.RetrievedChunk{
		{DocumentID: 7, DocumentTitle: "Invoice", ChunkIndex: 0, Text: "A", Distance: 0.1},
		{DocumentID: 9, DocumentTitle: "Contract", ChunkIndex: 1, Text: "B", Distance: 0.2},
		{DocumentID: 7, DocumentTitle: "Invoice", ChunkIndex: 3, Text: "C", Distance: 0.3},
	}
	want := "=== Document: Invoice ===\n" +
		"[Source 1, Page 1, Relevance 0.90]\nA\n" +
		"\n---\n" +
		"[Source 3, Page 4, Relevance 0.70]\nC\n" +
		"\n" +
		"=== Document: Contract ===\n" +
		"[Source 2, Page 2, Relevance 0.80]\nB\n"
	assert.Equal(t, want, BuildGroupedContext(chunks))
}

func TestAnswerSingle_UsesAnswerParams(t *testing.T) {
	fl := &fakeLLM{reply: "The total is $500."}
	svc := NewAnswerService(fl, testLLMConfig())

	answer, err := svc.AnswerSingle(context.Background(), "What is the total?", []model.RetrievedChunk{
		{ChunkIndex: 0, Text: "Total due: $500", Distance: 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, "The total is $500.", answer)

	require.Len(t, fl.messages, 2)
	assert.Equal(t, "system", fl.messages[0].Role)
	assert.Contains(t, fl.messages[1].Content, "[Source 1, Page 1, Relevance 0.80]")
	assert.Contains(t, fl.messages[1].Content, "Question: What is the total?")
	require.NotNil(t, fl.params.Temperature)
	assert.Equal(t, 0.2, *fl.params.Temperature)
	assert.Equal(t, 800, *fl.params.MaxTokens)
}

func TestAnswerSingle_FailureReturnsDisplayableText(t *testing.T) {
	svc := NewAnswerService(&fakeLLM{err: errBoom}, testLLMConfig())

	answer, err := svc.AnswerSingle(context.Background(), "q", []model.RetrievedChunk{{Text: "x"}})
	require.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Equal(t, "Error generating answer: boom", answer)
}

func TestAnswerMulti_GroupsByDocument(t *testing.T) {
	fl := &fakeLLM{reply: "Both documents agree."}
	svc := NewAnswerService(fl, testLLMConfig())

	_, err := svc.AnswerMulti(context.Background(), "q", []model.RetrievedChunk{
		{DocumentID: 1, DocumentTitle: "Invoice", Text: "a"},
		{DocumentID: 2, DocumentTitle: "Contract", Text: "b"},
	})
	require.NoError(t, err)
	assert.Contains(t, fl.messages[1].Content, "=== Document: Invoice ===")
	assert.Contains(t, fl.messages[1].Content, "=== Document: Contract ===")
	assert.Contains(t, fl.messages[0].Content, "contradict")
}

func TestSummarize(t *testing.T) {
	fl := &fakeLLM{reply: "An invoice for consulting services."}
	svc := NewAnswerService(fl, testLLMConfig())

	assert.Equal(t, "An invoice for consulting services.", svc.Summarize(context.Background(), "text", 12))
	assert.Contains(t, fl.messages[1].Content, "(12 words)")
	assert.Equal(t, 0.3, *fl.params.Temperature)
	assert.Equal(t, 500, *fl.params.MaxTokens)

	fl.err = errBoom
	assert.Equal(t, "Document contains 12 words. Analysis failed: boom", svc.Summarize(context.Background(), "text", 12))
}

func TestStreamMulti(t *testing.T) {
	fl := &fakeLLM{stream: []string{"Hello", " there"}}
	svc := NewAnswerService(fl, testLLMConfig())
	w := &recordingWriter{}

	require.NoError(t, svc.StreamMulti(context.Background(), "q", []model.RetrievedChunk{{Text: "a"}}, w))
	assert.Equal(t, []string{"Hello", " there"}, w.parts)

	fl.err = errBoom
	assert.ErrorIs(t, svc.StreamMulti(context.Background(), "q", nil, w), ErrSynthesisFailed)
}
